package harness

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/treeharness/internal/store"
	"github.com/freeeve/treeharness/internal/workload"
)

// corruptValueStore loads 20 word keys with 100+ byte values, then flips a
// byte inside the value stored for "seven".
func corruptValueStore(t *testing.T) (afero.Fs, *workload.Sequential) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "corrupt.rdb", store.Options{PageSize: store.MinPageSize})
	require.NoError(t, err)
	gen := workload.NewWords(20, workload.RepeatIndex(100))
	_, err = Load(context.Background(), gen, s, LoadConfig{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := afero.ReadFile(fs, "corrupt.rdb")
	require.NoError(t, err)
	at := bytes.Index(data, []byte(strings.Repeat("7", 100)))
	require.Positive(t, at)
	data[at+50] = 'x'
	require.NoError(t, afero.WriteFile(fs, "corrupt.rdb", data, 0644))
	return fs, gen
}

func TestVerifyFailFast(t *testing.T) {
	fs, _ := corruptValueStore(t)
	s, err := Reopen(fs, "corrupt.rdb", store.Options{})
	require.NoError(t, err)
	defer s.Close()

	scan, err := Verify(s, 0, FailFast)
	require.NoError(t, err)
	defer scan.Close()

	var keys []string
	for scan.Next() {
		keys = append(keys, string(scan.Entry().Key))
	}
	require.ErrorIs(t, scan.Err(), store.ErrCorrupt)
	assert.NotContains(t, keys, "seven")
	assert.Less(t, len(keys), 20)
	assert.EqualValues(t, 1, scan.Failed())
	assert.False(t, scan.Next(), "scan must stay finished")
}

func TestVerifyReportErrors(t *testing.T) {
	fs, gen := corruptValueStore(t)
	s, err := Reopen(fs, "corrupt.rdb", store.Options{})
	require.NoError(t, err)
	defer s.Close()

	scan, err := Verify(s, 0, ReportErrors)
	require.NoError(t, err)
	defer scan.Close()

	var failed []string
	n := 0
	for scan.Next() {
		e := scan.Entry()
		n++
		if e.Err != nil {
			assert.ErrorIs(t, e.Err, store.ErrCorrupt)
			failed = append(failed, string(e.Key))
		}
	}
	require.NoError(t, scan.Err())
	assert.Equal(t, 20, n)
	assert.Equal(t, []string{"seven"}, failed)

	scan2, err := Verify(s, 0, ReportErrors)
	require.NoError(t, err)
	defer scan2.Close()
	report := Check(scan2, Expect(gen))
	assert.False(t, report.OK())
	assert.EqualValues(t, 1, report.DerefErrors)
	assert.Zero(t, report.Missing)
	assert.EqualValues(t, 20, report.Entries)
	assert.Contains(t, report.String(), "seven")
}

func TestCheckFailFastReport(t *testing.T) {
	fs, gen := corruptValueStore(t)
	s, err := Reopen(fs, "corrupt.rdb", store.Options{})
	require.NoError(t, err)
	defer s.Close()

	scan, err := Verify(s, 0, FailFast)
	require.NoError(t, err)
	report := Check(scan, Expect(gen))
	require.ErrorIs(t, report.ScanErr, store.ErrCorrupt)
	assert.False(t, report.OK())
	assert.Positive(t, report.Missing)
}

func TestVerifyNoCheckpoint(t *testing.T) {
	s := InMemory()
	_, err := Verify(s, 0, FailFast)
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestVerifyUnknownID(t *testing.T) {
	s := InMemory()
	_, err := Load(context.Background(), workload.NewDecimal(10), s, LoadConfig{})
	require.NoError(t, err)

	for _, id := range []store.ID{1 << 40, math.MaxUint64} {
		_, err = Verify(s, id, FailFast)
		require.ErrorIs(t, err, store.ErrTreeNotFound, "id %s", id)
	}
}

func TestReopenMissingStore(t *testing.T) {
	_, err := Reopen(afero.NewMemMapFs(), "nope.rdb", store.Options{})
	require.ErrorIs(t, err, store.ErrStoreNotFound)
}

func TestVerifyLiteralKeysInOrder(t *testing.T) {
	s := InMemory()
	gen := workload.Pairs("helloworld", "hi", "helloworld1", "hi", "hi", "hi")
	res, err := Load(context.Background(), gen, s, LoadConfig{})
	require.NoError(t, err)

	scan, err := Verify(s, res.Final, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	var got []string
	for scan.Next() {
		got = append(got, string(scan.Entry().Key))
		assert.Equal(t, 2, scan.Entry().ValueLen)
	}
	assert.Equal(t, []string{"helloworld", "helloworld1", "hi"}, got)
	assert.EqualValues(t, 3, scan.Entries())
}

func TestCheckMismatches(t *testing.T) {
	s := InMemory()
	_, err := Load(context.Background(), workload.Pairs("a", "1", "b", "22", "c", "1"), s, LoadConfig{})
	require.NoError(t, err)

	scan, err := Verify(s, 0, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	report := Check(scan, Expect(workload.Pairs("a", "1", "b", "1", "d", "1")))
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Unexpected)
	assert.Equal(t, 1, report.WrongLength)
	assert.False(t, report.OK())
	assert.Len(t, report.Samples, 3)
}

func TestCheckMonotonicDetectsLostKeys(t *testing.T) {
	s := InMemory()
	a := s.Empty()
	require.NoError(t, a.Insert([]byte("a"), nil))
	require.NoError(t, a.Insert([]byte("b"), nil))
	first, err := a.Reattach()
	require.NoError(t, err)

	b := s.Empty()
	require.NoError(t, b.Insert([]byte("c"), nil))
	second, err := b.Reattach()
	require.NoError(t, err)

	require.ErrorIs(t, CheckMonotonic(s, []store.ID{first, second}), ErrNotMonotonic)
	require.ErrorIs(t, CheckMonotonic(s, []store.ID{second, first}), ErrNotMonotonic)
	require.NoError(t, CheckMonotonic(s, []store.ID{first}))
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{FailFast, ReportErrors} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("ignore")
	assert.Error(t, err)
}
