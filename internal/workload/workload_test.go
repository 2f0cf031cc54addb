package workload

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/treeharness/internal/words"
)

func drain(g Generator) []Item {
	var out []Item
	for {
		it, ok := g.Next()
		if !ok {
			return out
		}
		out = append(out, it)
	}
}

func TestWordsSequence(t *testing.T) {
	g := NewWords(25, Const("1"))
	require.EqualValues(t, 25, g.Len())

	items := drain(g)
	require.Len(t, items, 25)
	for i, it := range items {
		assert.Equal(t, words.Format(int64(i)), string(it.Key))
		assert.Equal(t, "1", string(it.Value))
	}

	_, ok := g.Next()
	assert.False(t, ok, "exhausted generator must stay exhausted")
}

func TestWordsReset(t *testing.T) {
	g := NewWords(10, RepeatIndex(3))
	first := drain(g)
	g.Reset()
	second := drain(g)
	assert.Equal(t, first, second)
	assert.Equal(t, "777", string(first[7].Value))
	assert.Equal(t, "zero", string(first[0].Key))
}

func TestRepeatIndexLength(t *testing.T) {
	p := RepeatIndex(10000)
	assert.Len(t, p(0), 10000)
	assert.Len(t, p(42), 20000)
	assert.Len(t, p(999), 30000)
}

func TestDecimal(t *testing.T) {
	items := drain(NewDecimal(12))
	require.Len(t, items, 12)
	assert.Equal(t, "11", string(items[11].Key))
	assert.Equal(t, "11", string(items[11].Value))
}

func TestRandomKeys(t *testing.T) {
	g := NewRandom(200, RandomKeyLen, rand.New(rand.NewSource(7)), []byte("1"))
	items := drain(g)
	require.Len(t, items, 200)

	for _, it := range items {
		require.Len(t, it.Key, RandomKeyLen)
		for _, c := range it.Key {
			require.GreaterOrEqual(t, int(c), MinPrintable)
			require.Less(t, int(c), MaxPrintable)
		}
		assert.Equal(t, "1", string(it.Value))
	}
}

func TestRandomCoversAlphabet(t *testing.T) {
	g := NewRandom(50, RandomKeyLen, rand.New(rand.NewSource(1)), nil)
	seen := make(map[byte]bool)
	for _, it := range drain(g) {
		for _, c := range it.Key {
			seen[c] = true
		}
	}
	assert.Len(t, seen, MaxPrintable-MinPrintable)
	assert.True(t, seen[' '])
	assert.False(t, seen['~'], "126 is outside the half-open range")
}

func TestLiteral(t *testing.T) {
	g := Pairs("helloworld", "hi", "helloworld1", "hi", "hi", "hi")
	require.EqualValues(t, 3, g.Len())
	items := drain(g)
	require.Len(t, items, 3)
	assert.Equal(t, "helloworld1", string(items[1].Key))
}

func TestBuild(t *testing.T) {
	g, err := Build(Words, 5, Options{})
	require.NoError(t, err)
	items := drain(g)
	require.Len(t, items, 5)
	assert.Equal(t, "four", string(items[4].Key))

	g, err = Build(Random, 3, Options{KeyLen: 16, Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, err)
	for _, it := range drain(g) {
		assert.Len(t, it.Key, 16)
		assert.Equal(t, "1", string(it.Value))
	}

	_, err = Build(Mode(42), 1, Options{})
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.True(t, strings.HasPrefix(Mode(42).String(), "mode("))
}

func TestEmptyGenerators(t *testing.T) {
	for _, g := range []Generator{NewWords(0, Const("x")), NewDecimal(-3), NewLiteral()} {
		_, ok := g.Next()
		assert.False(t, ok)
		assert.EqualValues(t, 0, g.Len())
	}
}
