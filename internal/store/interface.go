package store

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrStoreNotFound is returned when opening a store file that does not exist without Create.
	ErrStoreNotFound = errors.New("store not found")
	// ErrLocked is returned when another handle owns the store file.
	ErrLocked = errors.New("store is locked by another loader")
	// ErrCorrupt is returned when a header, blob frame or node fails validation.
	ErrCorrupt = errors.New("store data corrupt")
	// ErrTreeNotFound is returned when a checkpoint ID does not resolve to a tree root.
	ErrTreeNotFound = errors.New("tree not found")
	// ErrDanglingRef is returned when an ID points outside the committed data.
	ErrDanglingRef = errors.New("dangling blob reference")
	// ErrReadOnly is returned by writes to a store opened read-only.
	ErrReadOnly = errors.New("store opened read-only")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrKeyTooLarge is returned by Insert for keys over MaxKeySize.
	ErrKeyTooLarge = errors.New("key too large")
	// ErrPageSize is returned for page sizes that are too small or disagree with the file.
	ErrPageSize = errors.New("invalid page size")
)

// ID addresses a blob inside a BlobStore. The zero ID never names a blob,
// so it doubles as "no checkpoint".
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// IsZero reports whether id is the "none" ID.
func (id ID) IsZero() bool { return id == 0 }

// ParseID parses the form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(v), nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// BlobStore is an append-only blob space with a single durable root pointer.
//
// Appended blobs are readable immediately but only survive a reopen once a
// later Commit returns.
type BlobStore interface {
	// Append writes data as a new blob.
	Append(data []byte) (ID, error)
	// Read returns the payload of the blob at id. The result must not be modified.
	Read(id ID) ([]byte, error)
	// Commit makes every appended blob durable and records root as the last ID.
	Commit(root ID) error
	// LastID returns the most recently committed root, if any.
	LastID() (ID, bool)
	Stats() Stats
	Close() error
}
