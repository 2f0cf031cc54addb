package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/btree"
)

// Tree is an ordered key/value tree bound to a BlobStore.
//
// Inserts only touch memory. Reattach persists everything inserted since
// the previous Reattach and returns the ID of the new durable root; a
// Tree can be recovered at any such ID with Load.
type Tree struct {
	blobs BlobStore

	items *btree.BTreeG[entry] // every entry, committed or not
	dirty *btree.BTreeG[entry] // entries inserted since the last Reattach

	root ID
	seq  uint64

	inlineLimit int
}

func newEntryTree() *btree.BTreeG[entry] {
	return btree.NewBTreeGOptions(entryLess, btree.Options{NoLocks: true})
}

func newTree(blobs BlobStore) *Tree {
	return &Tree{
		blobs:       blobs,
		items:       newEntryTree(),
		dirty:       newEntryTree(),
		inlineLimit: DefaultInlineLimit,
	}
}

// Empty returns a tree with no entries bound to blobs.
func Empty(blobs BlobStore) *Tree {
	return newTree(blobs)
}

// Load recovers the tree whose root was returned by Reattach as id.
func Load(blobs BlobStore, id ID) (*Tree, error) {
	if id == 0 {
		return nil, fmt.Errorf("load tree: zero id: %w", ErrTreeNotFound)
	}

	// walk the root chain newest first
	var chain []rootNode
	for cur := id; cur != 0; {
		buf, err := blobs.Read(cur)
		if err != nil {
			if errors.Is(err, ErrDanglingRef) {
				return nil, fmt.Errorf("root %s: %v: %w", cur, err, ErrTreeNotFound)
			}
			return nil, fmt.Errorf("read root %s: %w", cur, err)
		}
		node, err := decodeRoot(buf)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", cur, err)
		}
		if node.Prev >= cur {
			return nil, fmt.Errorf("root %s links forward to %s: %w", cur, node.Prev, ErrCorrupt)
		}
		if n := len(chain); n > 0 && node.Seq+1 != chain[n-1].Seq {
			return nil, fmt.Errorf("root %s has seq %d, want %d: %w", cur, node.Seq, chain[n-1].Seq-1, ErrCorrupt)
		}
		chain = append(chain, node)
		cur = node.Prev
	}
	if oldest := chain[len(chain)-1]; oldest.Seq != 1 {
		return nil, fmt.Errorf("root chain starts at seq %d: %w", oldest.Seq, ErrCorrupt)
	}

	t := newTree(blobs)
	for i := len(chain) - 1; i >= 0; i-- {
		node := chain[i]
		if node.Segment != 0 {
			buf, err := blobs.Read(node.Segment)
			if err != nil {
				return nil, fmt.Errorf("read segment %s: %w", node.Segment, err)
			}
			entries, err := decodeSegment(buf)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", node.Segment, err)
			}
			for _, e := range entries {
				t.items.Set(e)
			}
		}
		if uint64(t.items.Len()) != node.Count {
			return nil, fmt.Errorf("checkpoint %d holds %d entries, root says %d: %w",
				node.Seq, t.items.Len(), node.Count, ErrCorrupt)
		}
	}
	t.root = id
	t.seq = chain[0].Seq
	return t, nil
}

// SetInlineLimit sets the largest value Reattach keeps inside a segment.
func (t *Tree) SetInlineLimit(n int) {
	t.inlineLimit = n
}

// Insert adds or replaces key. The tree copies key and value.
func (t *Tree) Insert(key, value []byte) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("insert %d byte key: %w", len(key), ErrKeyTooLarge)
	}
	e := entry{key: bytes.Clone(key), val: InlineValue(bytes.Clone(value))}
	t.items.Set(e)
	t.dirty.Set(e)
	return nil
}

// Get returns the value stored under key.
func (t *Tree) Get(key []byte) (Value, bool) {
	e, ok := t.items.Get(entry{key: key})
	return e.val, ok
}

// Len returns the number of entries, including those not yet reattached.
func (t *Tree) Len() int { return t.items.Len() }

// Pending returns the number of entries inserted since the last Reattach.
func (t *Tree) Pending() int { return t.dirty.Len() }

// Root returns the ID of the last durable root, or 0.
func (t *Tree) Root() ID { return t.root }

// Seq returns how many checkpoints lead up to Root.
func (t *Tree) Seq() uint64 { return t.seq }

// Blobs returns the store the tree is bound to.
func (t *Tree) Blobs() BlobStore { return t.blobs }
