// Package harness bulk loads generated workloads into a tree store with
// periodic checkpoints, and reopens stores to verify what a checkpoint
// recovers.
package harness

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/freeeve/treeharness/internal/store"
)

// Store is the capability the harness needs from an ordered store.
type Store interface {
	// Empty returns a new tree with no entries bound to the store.
	Empty() Tree
	// Load recovers the tree checkpointed under id.
	Load(id store.ID) (Tree, error)
	// LastID returns the most recent durable checkpoint, if any.
	LastID() (store.ID, bool)
	Close() error
}

// Tree is an ordered key/value tree that can be checkpointed.
type Tree interface {
	Insert(key, value []byte) error
	// Reattach persists all changes and returns the new checkpoint ID.
	Reattach() (store.ID, error)
	Len() int
	Iter() Iterator
}

// Iterator walks a tree in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	// ValueLen is the length of the current value, known without loading it.
	ValueLen() int
	// Load dereferences the current value.
	Load() ([]byte, error)
	Close()
}

// TreeStore serves trees from a blob store.
type TreeStore struct {
	blobs store.BlobStore
}

// NewTreeStore wraps blobs.
func NewTreeStore(blobs store.BlobStore) *TreeStore {
	return &TreeStore{blobs: blobs}
}

// Open opens the paged store file at path, creating it if needed.
func Open(fs afero.Fs, path string, opts store.Options) (*TreeStore, error) {
	opts.Create = true
	blobs, err := store.OpenPagedFile(fs, path, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewTreeStore(blobs), nil
}

// Reopen opens an existing paged store file read-only. It ignores the
// loader's lock file, so a store abandoned mid-load reopens at its last
// checkpoint. A missing file is store.ErrStoreNotFound.
func Reopen(fs afero.Fs, path string, opts store.Options) (*TreeStore, error) {
	opts.Create = false
	opts.ReadOnly = true
	blobs, err := store.OpenPagedFile(fs, path, opts)
	if err != nil {
		return nil, fmt.Errorf("reopen store: %w", err)
	}
	return NewTreeStore(blobs), nil
}

// InMemory returns a store backed by a store.MemStore.
func InMemory() *TreeStore {
	return NewTreeStore(store.NewMemStore())
}

func (s *TreeStore) Empty() Tree {
	return tree{store.Empty(s.blobs)}
}

func (s *TreeStore) Load(id store.ID) (Tree, error) {
	t, err := store.Load(s.blobs, id)
	if err != nil {
		return nil, err
	}
	return tree{t}, nil
}

func (s *TreeStore) LastID() (store.ID, bool) { return s.blobs.LastID() }

// Stats reports the underlying blob store statistics.
func (s *TreeStore) Stats() store.Stats { return s.blobs.Stats() }

func (s *TreeStore) Close() error { return s.blobs.Close() }

type tree struct {
	*store.Tree
}

func (t tree) Iter() Iterator { return iterator{t.Tree.Iter()} }

type iterator struct {
	*store.Iterator
}

func (it iterator) ValueLen() int { return it.Value().Len() }
