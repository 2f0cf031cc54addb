package workload

import (
	"math/rand"
)

// Random key alphabet: printable ASCII in [MinPrintable, MaxPrintable).
const (
	RandomKeyLen = 1024
	MinPrintable = 32
	MaxPrintable = 126
)

// RandomStrings produces n items whose keys are keyLen characters drawn
// uniformly from [MinPrintable, MaxPrintable). Every call draws fresh
// keys, so the sequence is not restartable. Duplicate keys can occur by
// chance.
type RandomStrings struct {
	n      int64
	next   int64
	keyLen int
	rng    *rand.Rand
	value  []byte
}

// NewRandom returns a random-key generator. Every item carries value.
func NewRandom(n int64, keyLen int, rng *rand.Rand, value []byte) *RandomStrings {
	return &RandomStrings{
		n:      n,
		keyLen: keyLen,
		rng:    rng,
		value:  value,
	}
}

func (r *RandomStrings) Next() (Item, bool) {
	if r.next >= r.n {
		return Item{}, false
	}
	r.next++

	key := make([]byte, r.keyLen)
	for i := range key {
		key[i] = byte(MinPrintable + r.rng.Intn(MaxPrintable-MinPrintable))
	}
	return Item{Key: key, Value: r.value}, true
}

func (r *RandomStrings) Len() int64 { return max(r.n, 0) }
