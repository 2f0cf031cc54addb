package harness

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/freeeve/treeharness/internal/store"
	"github.com/freeeve/treeharness/internal/workload"
)

// ErrNotMonotonic is returned by CheckMonotonic when a later checkpoint
// lost a key an earlier one held.
var ErrNotMonotonic = errors.New("checkpoint lost keys")

const maxSamples = 5

// Expectation is the key set a load should have produced, with the
// length of each value.
type Expectation struct {
	lens map[string]int
}

// Expect replays gen into an expectation. Generators with a Reset method
// are rewound before and after.
func Expect(gen workload.Generator) Expectation {
	if r, ok := gen.(interface{ Reset() }); ok {
		r.Reset()
		defer r.Reset()
	}
	exp := Expectation{lens: make(map[string]int, max(gen.Len(), 0))}
	for {
		item, ok := gen.Next()
		if !ok {
			return exp
		}
		exp.lens[string(item.Key)] = len(item.Value)
	}
}

// Len is the number of distinct keys expected.
func (e Expectation) Len() int { return len(e.lens) }

// Report is the outcome of checking a scan against an expectation.
type Report struct {
	Entries     int64 // entries scanned
	Missing     int   // expected keys never seen
	Unexpected  int   // scanned keys not expected
	WrongLength int   // value length differs from the expectation
	DerefErrors int64 // values that could not be loaded
	ScanErr     error // error that ended the scan early

	Samples []string // a few of the problems, for logging
}

// OK reports whether the scan matched the expectation exactly.
func (r Report) OK() bool {
	return r.Missing == 0 && r.Unexpected == 0 && r.WrongLength == 0 &&
		r.DerefErrors == 0 && r.ScanErr == nil
}

func (r Report) String() string {
	if r.OK() {
		return fmt.Sprintf("ok: %d entries", r.Entries)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d entries, %d missing, %d unexpected, %d wrong length, %d unreadable",
		r.Entries, r.Missing, r.Unexpected, r.WrongLength, r.DerefErrors)
	if r.ScanErr != nil {
		fmt.Fprintf(&b, ", scan aborted: %v", r.ScanErr)
	}
	for _, s := range r.Samples {
		b.WriteString("; ")
		b.WriteString(s)
	}
	return b.String()
}

func (r *Report) sample(format string, args ...any) {
	if len(r.Samples) < maxSamples {
		r.Samples = append(r.Samples, fmt.Sprintf(format, args...))
	}
}

// Check drains scan and compares what it recovers with exp.
func Check(scan *Scan, exp Expectation) Report {
	var r Report
	remaining := maps.Clone(exp.lens)
	for scan.Next() {
		e := scan.Entry()
		r.Entries++
		if e.Err != nil {
			r.DerefErrors++
			r.sample("%q: %v", abbrev(e.Key), e.Err)
		}
		want, ok := remaining[string(e.Key)]
		if !ok {
			r.Unexpected++
			r.sample("unexpected key %q", abbrev(e.Key))
			continue
		}
		delete(remaining, string(e.Key))
		if want != e.ValueLen {
			r.WrongLength++
			r.sample("%q: value length %d, want %d", abbrev(e.Key), e.ValueLen, want)
		}
	}
	if err := scan.Err(); err != nil {
		r.ScanErr = err
		r.DerefErrors++
	}
	r.Missing = len(remaining)
	for k := range remaining {
		if len(r.Samples) >= maxSamples {
			break
		}
		r.sample("missing key %q", abbrev([]byte(k)))
	}
	return r
}

// CheckMonotonic loads every checkpoint in order and verifies that each
// holds every key of the one before it.
func CheckMonotonic(s Store, checkpoints []store.ID) error {
	var prev map[string]struct{}
	var prevID store.ID
	for i, id := range checkpoints {
		if i > 0 && id <= prevID {
			return fmt.Errorf("checkpoint %d id %s not after %s: %w", i, id, prevID, ErrNotMonotonic)
		}
		t, err := s.Load(id)
		if err != nil {
			return fmt.Errorf("load checkpoint %d (%s): %w", i, id, err)
		}
		keys := make(map[string]struct{}, t.Len())
		it := t.Iter()
		for it.Next() {
			keys[string(it.Key())] = struct{}{}
		}
		it.Close()

		for k := range prev {
			if _, ok := keys[k]; !ok {
				return fmt.Errorf("checkpoint %d (%s) lost key %q held by %s: %w",
					i, id, abbrev([]byte(k)), prevID, ErrNotMonotonic)
			}
		}
		prev, prevID = keys, id
	}
	return nil
}
