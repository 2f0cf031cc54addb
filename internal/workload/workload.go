// Package workload produces the key/value sequences that are bulk loaded
// into a tree store.
package workload

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/treeharness/internal/words"
)

// ErrUnknownMode is returned by Build for an unrecognised Mode.
var ErrUnknownMode = errors.New("unknown workload mode")

// Item is one generated key/value pair.
type Item struct {
	Key   []byte
	Value []byte
}

// Generator is a lazy, finite sequence of items.
type Generator interface {
	// Next returns the next item, or false once the sequence is exhausted.
	Next() (Item, bool)
	// Len is the total number of items the generator produces.
	Len() int64
}

// Mode selects how keys are generated.
type Mode int

const (
	// Words keys are the English spelling of 0..n-1.
	Words Mode = iota
	// Random keys are fixed-length printable ASCII strings.
	Random
	// Decimal keys and values are the decimal form of 0..n-1.
	Decimal
)

func (m Mode) String() string {
	switch m {
	case Words:
		return "words"
	case Random:
		return "random"
	case Decimal:
		return "decimal"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Options tunes Build. Zero values pick the defaults.
type Options struct {
	Payload Payload    // Words only, default Const("1")
	KeyLen  int        // Random only, default RandomKeyLen
	Rand    *rand.Rand // Random only, default seeded from the clock
	Value   []byte     // Random only, default "1"
}

// Build returns a generator of n items for the given mode.
func Build(mode Mode, n int64, opts Options) (Generator, error) {
	switch mode {
	case Words:
		payload := opts.Payload
		if payload == nil {
			payload = Const("1")
		}
		return NewWords(n, payload), nil
	case Random:
		r := opts.Rand
		if r == nil {
			r = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		keyLen := opts.KeyLen
		if keyLen == 0 {
			keyLen = RandomKeyLen
		}
		value := opts.Value
		if value == nil {
			value = []byte("1")
		}
		return NewRandom(n, keyLen, r, value), nil
	case Decimal:
		return NewDecimal(n), nil
	default:
		return nil, ErrUnknownMode
	}
}

// Payload computes the value stored alongside item i.
type Payload func(i int64) []byte

// Const stores the same value for every item.
func Const(s string) Payload {
	b := []byte(s)
	return func(int64) []byte { return b }
}

// RepeatIndex stores the decimal form of i repeated times times, which
// inflates value size for I/O stress.
func RepeatIndex(times int) Payload {
	return func(i int64) []byte {
		return []byte(strings.Repeat(strconv.FormatInt(i, 10), times))
	}
}

// Sequential walks 0..n-1 in ascending order. It is deterministic and
// can be restarted with Reset.
type Sequential struct {
	n     int64
	next  int64
	key   func(i int64) []byte
	value Payload
}

// NewWords keys item i with words.Format(i). The resulting keys do not
// sort in the order of i.
func NewWords(n int64, value Payload) *Sequential {
	return &Sequential{
		n:     n,
		key:   func(i int64) []byte { return []byte(words.Format(i)) },
		value: value,
	}
}

// NewDecimal uses the decimal form of i as both key and value.
func NewDecimal(n int64) *Sequential {
	decimal := func(i int64) []byte { return strconv.AppendInt(nil, i, 10) }
	return &Sequential{n: n, key: decimal, value: decimal}
}

func (s *Sequential) Next() (Item, bool) {
	if s.next >= s.n {
		return Item{}, false
	}
	i := s.next
	s.next++
	return Item{Key: s.key(i), Value: s.value(i)}, true
}

func (s *Sequential) Len() int64 { return max(s.n, 0) }

// Reset rewinds the generator to item 0.
func (s *Sequential) Reset() { s.next = 0 }

// Literal replays a fixed list of items.
type Literal struct {
	items []Item
	next  int
}

// NewLiteral returns a generator over items, in order.
func NewLiteral(items ...Item) *Literal {
	return &Literal{items: items}
}

// Pairs builds a Literal from alternating key, value strings.
func Pairs(kv ...string) *Literal {
	items := make([]Item, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		items = append(items, Item{Key: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return NewLiteral(items...)
}

func (l *Literal) Next() (Item, bool) {
	if l.next >= len(l.items) {
		return Item{}, false
	}
	it := l.items[l.next]
	l.next++
	return it, true
}

func (l *Literal) Len() int64 { return int64(len(l.items)) }

// Reset rewinds the generator to the first item.
func (l *Literal) Reset() { l.next = 0 }
