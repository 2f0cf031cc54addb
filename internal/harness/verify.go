package harness

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/freeeve/treeharness/internal/store"
)

// ErrNoCheckpoint is returned when a store has no durable checkpoint to
// resolve the zero ID against.
var ErrNoCheckpoint = errors.New("store has no checkpoint")

// Policy decides what a Scan does when a value cannot be dereferenced.
type Policy int

const (
	// FailFast ends the scan at the first dereference error; Scan.Err
	// reports it.
	FailFast Policy = iota
	// ReportErrors records the error on the entry and keeps scanning.
	ReportErrors
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case ReportErrors:
		return "report"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail-fast", "failfast", "":
		return FailFast, nil
	case "report":
		return ReportErrors, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}

// Entry is one key recovered by a Scan.
type Entry struct {
	Key      []byte
	ValueLen int
	Err      error // dereference failure, only under ReportErrors
}

// Scan is a single pass over a recovered tree in key order.
type Scan struct {
	id     store.ID
	tree   Tree
	it     Iterator
	policy Policy

	cur     Entry
	err     error
	done    bool
	entries int64
	failed  int64
}

// Verify loads the tree checkpointed under id and returns a scan over it.
// The zero id means the store's last checkpoint.
func Verify(s Store, id store.ID, policy Policy) (*Scan, error) {
	if id == 0 {
		last, ok := s.LastID()
		if !ok {
			return nil, ErrNoCheckpoint
		}
		id = last
	}
	t, err := s.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return &Scan{id: id, tree: t, it: t.Iter(), policy: policy}, nil
}

// ID is the checkpoint being scanned.
func (sc *Scan) ID() store.ID { return sc.id }

// Len is the number of entries the checkpoint holds.
func (sc *Scan) Len() int { return sc.tree.Len() }

// Next advances to the next entry.
func (sc *Scan) Next() bool {
	if sc.done {
		return false
	}
	if !sc.it.Next() {
		sc.finish()
		return false
	}

	key := bytes.Clone(sc.it.Key())
	e := Entry{Key: key, ValueLen: sc.it.ValueLen()}
	if _, err := sc.it.Load(); err != nil {
		sc.failed++
		if sc.policy == FailFast {
			sc.err = fmt.Errorf("entry %d (key %q): %w", sc.entries, abbrev(key), err)
			sc.cur = Entry{}
			sc.finish()
			return false
		}
		e.Err = err
	}
	sc.entries++
	sc.cur = e
	return true
}

// Entry returns the current entry.
func (sc *Scan) Entry() Entry { return sc.cur }

// Err returns the error that ended the scan early, if any.
func (sc *Scan) Err() error { return sc.err }

// Entries is the number of entries returned so far.
func (sc *Scan) Entries() int64 { return sc.entries }

// Failed is the number of entries whose value could not be loaded.
func (sc *Scan) Failed() int64 { return sc.failed }

// Close releases the scan. It is safe to call more than once.
func (sc *Scan) Close() { sc.finish() }

func (sc *Scan) finish() {
	if !sc.done {
		sc.done = true
		sc.it.Close()
	}
}

func abbrev(key []byte) []byte {
	if len(key) > 40 {
		return key[:40]
	}
	return key
}
