package store

import (
	"bytes"
	"fmt"
)

// Size limits
const (
	MaxKeySize = 64 * 1024 // keys longer than this are rejected by Insert

	// DefaultInlineLimit is the largest value kept inside a segment. Larger
	// values are written as their own blob and referenced by ID.
	DefaultInlineLimit = 64
)

// Value is a tree value: either held inline, or stored out of line in a
// blob that must be dereferenced with Load.
type Value struct {
	inline []byte
	ref    ID
	size   int
}

// InlineValue wraps b as an inline value.
func InlineValue(b []byte) Value {
	return Value{inline: b, size: len(b)}
}

// RefValue describes a size-byte value stored in blob ref.
func RefValue(ref ID, size int) Value {
	return Value{ref: ref, size: size}
}

// Len is the value length in bytes, known without dereferencing.
func (v Value) Len() int { return v.size }

// IsInline reports whether the value bytes are held in memory.
func (v Value) IsInline() bool { return v.ref == 0 }

// Ref returns the blob holding an out-of-line value, or 0.
func (v Value) Ref() ID { return v.ref }

// Load returns the value bytes, reading them from blobs if they are stored
// out of line.
func (v Value) Load(blobs BlobStore) ([]byte, error) {
	if v.ref == 0 {
		return v.inline, nil
	}
	data, err := blobs.Read(v.ref)
	if err != nil {
		return nil, fmt.Errorf("load value %s: %w", v.ref, err)
	}
	if len(data) != v.size {
		return nil, fmt.Errorf("value %s is %d bytes, want %d: %w", v.ref, len(data), v.size, ErrCorrupt)
	}
	return data, nil
}

// entry is one key/value pair held by a Tree.
type entry struct {
	key []byte
	val Value
}

func entryLess(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}
