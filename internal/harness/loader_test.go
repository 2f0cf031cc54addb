package harness

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/treeharness/internal/store"
	"github.com/freeeve/treeharness/internal/workload"
)

func TestLoadCheckpointCadence(t *testing.T) {
	s := InMemory()
	defer s.Close()

	var seen []Checkpoint
	res, err := Load(context.Background(), workload.NewDecimal(25), s, LoadConfig{
		CheckpointEvery: 10,
		OnCheckpoint:    func(cp Checkpoint) { seen = append(seen, cp) },
	})
	require.NoError(t, err)

	require.Len(t, res.Checkpoints, 3)
	assert.EqualValues(t, 10, res.Checkpoints[0].Inserted)
	assert.EqualValues(t, 20, res.Checkpoints[1].Inserted)
	assert.EqualValues(t, 25, res.Checkpoints[2].Inserted)
	assert.Equal(t, res.Checkpoints, seen)
	assert.Equal(t, res.Checkpoints[2].ID, res.Final)
	assert.EqualValues(t, 25, res.Inserted)

	last, ok := s.LastID()
	require.True(t, ok)
	assert.Equal(t, res.Final, last)
}

func TestLoadFinalCheckpointOnBoundary(t *testing.T) {
	s := InMemory()
	res, err := Load(context.Background(), workload.NewDecimal(20), s, LoadConfig{CheckpointEvery: 10})
	require.NoError(t, err)

	// the final reattach has nothing new to write
	require.Len(t, res.Checkpoints, 2)
	assert.Equal(t, res.Checkpoints[1].ID, res.Final)
	assert.EqualValues(t, 2, s.Stats().Commits)
}

func TestLoadWithoutPeriodicCheckpoints(t *testing.T) {
	s := InMemory()
	res, err := Load(context.Background(), workload.NewDecimal(100), s, LoadConfig{})
	require.NoError(t, err)
	require.Len(t, res.Checkpoints, 1)
	assert.EqualValues(t, 100, res.Checkpoints[0].Inserted)
}

func TestLoadEmptyWorkload(t *testing.T) {
	s := InMemory()
	res, err := Load(context.Background(), workload.NewDecimal(0), s, LoadConfig{CheckpointEvery: 10})
	require.NoError(t, err)
	require.NotZero(t, res.Final)

	scan, err := Verify(s, 0, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	assert.False(t, scan.Next())
	assert.Equal(t, 0, scan.Len())
}

func TestLoadInsertFailureAborts(t *testing.T) {
	s := InMemory()
	gen := workload.NewLiteral(
		workload.Item{Key: []byte("a"), Value: []byte("1")},
		workload.Item{Key: []byte("b"), Value: []byte("1")},
		workload.Item{Key: make([]byte, store.MaxKeySize+1), Value: []byte("1")},
		workload.Item{Key: []byte("c"), Value: []byte("1")},
	)
	res, err := Load(context.Background(), gen, s, LoadConfig{CheckpointEvery: 1})
	require.ErrorIs(t, err, store.ErrKeyTooLarge)
	assert.Contains(t, err.Error(), "insert item 2")
	assert.EqualValues(t, 2, res.Inserted)
	assert.Len(t, res.Checkpoints, 2)
	assert.Zero(t, res.Final)
}

var errReattach = errors.New("reattach failed")

type failingStore struct{ *TreeStore }

func (s failingStore) Empty() Tree { return failingTree{s.TreeStore.Empty()} }

type failingTree struct{ Tree }

func (failingTree) Reattach() (store.ID, error) { return 0, errReattach }

func TestLoadReattachFailureAborts(t *testing.T) {
	s := failingStore{InMemory()}
	res, err := Load(context.Background(), workload.NewDecimal(50), s, LoadConfig{CheckpointEvery: 10})
	require.ErrorIs(t, err, errReattach)
	assert.EqualValues(t, 10, res.Inserted)
	assert.Empty(t, res.Checkpoints)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := InMemory()

	res, err := Load(ctx, workload.NewDecimal(1000), s, LoadConfig{
		CheckpointEvery: 100,
		OnCheckpoint: func(cp Checkpoint) {
			if cp.Inserted == 300 {
				cancel()
			}
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 300, res.Inserted)
	require.Len(t, res.Checkpoints, 3)

	last, _ := s.LastID()
	assert.Equal(t, res.Checkpoints[2].ID, last)
}

func TestLoadReopenRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "words.rdb", store.Options{PageSize: store.MinPageSize})
	require.NoError(t, err)

	res, err := Load(context.Background(), workload.NewWords(2000, workload.Const("1")), s, LoadConfig{CheckpointEvery: 500})
	require.NoError(t, err)
	require.Len(t, res.Checkpoints, 4)
	require.NoError(t, s.Close())

	s, err = Reopen(fs, "words.rdb", store.Options{})
	require.NoError(t, err)
	defer s.Close()

	scan, err := Verify(s, 0, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	assert.Equal(t, res.Final, scan.ID())

	report := Check(scan, Expect(workload.NewWords(2000, workload.Const("1"))))
	assert.True(t, report.OK(), report.String())
	assert.EqualValues(t, 2000, report.Entries)

	require.NoError(t, CheckMonotonic(s, checkpointIDs(res.Checkpoints)))
	for _, cp := range res.Checkpoints {
		tr, err := s.Load(cp.ID)
		require.NoError(t, err)
		assert.EqualValues(t, cp.Inserted, tr.Len(), "checkpoint %s", cp.ID)
	}
}

func TestLoadReopenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fat.rdb")
	fs := afero.NewOsFs()

	s, err := Open(fs, path, store.Options{})
	require.NoError(t, err)
	gen := workload.NewWords(30, workload.RepeatIndex(FatValueRepeat))
	res, err := Load(context.Background(), gen, s, LoadConfig{CheckpointEvery: 7})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Reopen(fs, path, store.Options{})
	require.NoError(t, err)
	defer s.Close()

	scan, err := Verify(s, res.Final, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	report := Check(scan, Expect(gen))
	assert.True(t, report.OK(), report.String())
}

func TestCrashLosesOnlyUncheckpointedInserts(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "crash.rdb", store.Options{PageSize: store.MinPageSize})
	require.NoError(t, err)

	gen := workload.NewWords(150, workload.Const("1"))
	tr := s.Empty()
	var checkpoint store.ID
	for i := 0; ; i++ {
		item, ok := gen.Next()
		if !ok {
			break
		}
		require.NoError(t, tr.Insert(item.Key, item.Value))
		if i == 99 {
			checkpoint, err = tr.Reattach()
			require.NoError(t, err)
		}
	}
	// no final checkpoint and no Close: the loader's handle and lock file
	// are abandoned as after a kill
	require.True(t, store.IsLocked(fs, "crash.rdb"))

	r, err := Reopen(fs, "crash.rdb", store.Options{})
	require.NoError(t, err)
	defer r.Close()

	last, ok := r.LastID()
	require.True(t, ok)
	assert.Equal(t, checkpoint, last)

	scan, err := Verify(r, 0, FailFast)
	require.NoError(t, err)
	defer scan.Close()
	report := Check(scan, Expect(gen))
	assert.EqualValues(t, 100, report.Entries)
	assert.Equal(t, 50, report.Missing)
	assert.Zero(t, report.Unexpected)
	assert.Zero(t, report.WrongLength)
}

func checkpointIDs(cps []Checkpoint) []store.ID {
	ids := make([]store.ID, len(cps))
	for i, cp := range cps {
		ids[i] = cp.ID
	}
	return ids
}
