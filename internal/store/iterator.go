package store

import (
	"github.com/tidwall/btree"
)

// Iterator walks a snapshot of a tree in key order. Inserts made after
// Iter was called are not visible to it.
type Iterator struct {
	it      btree.IterG[entry]
	blobs   BlobStore
	started bool
	valid   bool
	cur     entry
}

// Iter returns an iterator positioned before the first entry.
func (t *Tree) Iter() *Iterator {
	return &Iterator{it: t.items.Copy().Iter(), blobs: t.blobs}
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator) Next() bool {
	if !it.started {
		it.started = true
		it.valid = it.it.First()
	} else if it.valid {
		it.valid = it.it.Next()
	}
	if it.valid {
		it.cur = it.it.Item()
	} else {
		it.cur = entry{}
	}
	return it.valid
}

// Key returns the current key. It must not be modified.
func (it *Iterator) Key() []byte { return it.cur.key }

// Value returns the current value, which may still need dereferencing.
func (it *Iterator) Value() Value { return it.cur.val }

// Load dereferences the current value.
func (it *Iterator) Load() ([]byte, error) { return it.cur.val.Load(it.blobs) }

// Close releases the iterator.
func (it *Iterator) Close() {
	it.it.Release()
	it.valid = false
}
