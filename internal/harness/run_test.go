package harness

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/treeharness/internal/store"
)

func TestRunLiteral(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := DefaultPlan(Literal, 0)
	res, err := Run(context.Background(), fs, plan, true, zerolog.Nop())
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.True(t, res.Report.OK(), res.Report.String())
	assert.EqualValues(t, 3, res.Load.Inserted)
	assert.False(t, store.IsLocked(fs, plan.Path), "store left locked")

	m, err := ReadManifest(fs, plan.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Load.Final, m.Final)
	assert.Equal(t, "literal", m.Scenario)
	assert.NotEmpty(t, m.RunID)
	assert.Empty(t, m.Error)
}

func TestRunDecimalInMemory(t *testing.T) {
	fs := afero.NewMemMapFs()
	res, err := Run(context.Background(), fs, DefaultPlan(Decimal, 500), false, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, res.Manifest)
	require.NotNil(t, res.Report, "in-memory runs always verify")
	assert.True(t, res.Report.OK(), res.Report.String())
	assert.EqualValues(t, 500, res.Report.Entries)
}

func TestRunRandomVerifiesWithRecordedSeed(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := DefaultPlan(Random, 50)
	plan.CheckpointEvery = 20
	plan.PageSize = store.MinPageSize
	res, err := Run(context.Background(), fs, plan, true, zerolog.Nop())
	require.NoError(t, err)
	assert.NotZero(t, res.Plan.Seed)
	assert.True(t, res.Report.OK(), res.Report.String())
	assert.Equal(t, res.Plan.Seed, res.Manifest.Seed)
	assert.Len(t, res.Load.Checkpoints, 3)
}

func TestRunFresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := DefaultPlan(Words, 200)
	plan.CheckpointEvery = 50
	plan.PageSize = store.MinPageSize

	first, err := Run(context.Background(), fs, plan, false, zerolog.Nop())
	require.NoError(t, err)

	plan.Fresh = true
	second, err := Run(context.Background(), fs, plan, true, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, second.Report.OK(), second.Report.String())
	assert.Equal(t, first.Load.Final, second.Load.Final, "a fresh file lays out the same blobs")
	assert.EqualValues(t, 4, second.Stats.Commits)
}

func TestRunRefusesLockedStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := DefaultPlan(Single, 0)
	require.NoError(t, afero.WriteFile(fs, store.LockFilePath(plan.Path), []byte("pid=1\n"), 0644))

	_, err := Run(context.Background(), fs, plan, false, zerolog.Nop())
	require.ErrorIs(t, err, store.ErrLocked)

	plan.Fresh = true
	_, err = Run(context.Background(), fs, plan, false, zerolog.Nop())
	require.ErrorIs(t, err, store.ErrLocked)
}

func TestRunRecordsAbortInManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := DefaultPlan(Words, 100)
	_, err := Run(ctx, fs, plan, false, zerolog.Nop())
	require.ErrorIs(t, err, context.Canceled)

	m, err := ReadManifest(fs, plan.Path)
	require.NoError(t, err)
	assert.Contains(t, m.Error, "interrupted")
	assert.Zero(t, m.Final)
}
