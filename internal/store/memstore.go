package store

import (
	"fmt"
	"sync"
)

// memStoreBase keeps offset 0 unused so that no blob gets the zero ID.
const memStoreBase = 8

// MemStore is a BlobStore backed by a single growable byte buffer. Blobs
// use the same framing as the paged file, and Commit only records the root.
type MemStore struct {
	mu      sync.Mutex
	buf     []byte
	last    ID
	commits uint64
	blobs   uint64
	closed  bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{buf: make([]byte, memStoreBase)}
}

func (m *MemStore) Append(data []byte) (ID, error) {
	if len(data) > MaxBlobSize {
		return 0, fmt.Errorf("blob of %d bytes exceeds limit", len(data))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	id := ID(len(m.buf))
	m.buf = append(m.buf, encodeFrame(data)...)
	m.blobs++
	return id, nil
}

func (m *MemStore) Read(id ID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if id < memStoreBase || uint64(id) > uint64(len(m.buf))-frameHeaderSize {
		return nil, fmt.Errorf("blob %s: %w", id, ErrDanglingRef)
	}
	length, checksum := decodeFrameHeader(m.buf[id:])
	start := uint64(id) + frameHeaderSize
	if start+uint64(length) > uint64(len(m.buf)) {
		return nil, fmt.Errorf("blob %s length %d: %w", id, length, ErrDanglingRef)
	}
	payload := make([]byte, length)
	copy(payload, m.buf[start:start+uint64(length)])
	if err := checkFrame(id, payload, checksum); err != nil {
		return nil, err
	}
	return payload, nil
}

func (m *MemStore) Commit(root ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.last = root
	m.commits++
	return nil
}

func (m *MemStore) LastID() (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last != 0
}

func (m *MemStore) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Blobs:       m.blobs,
		BytesStored: uint64(len(m.buf)),
		Commits:     m.commits,
		LastID:      m.last,
	}
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
