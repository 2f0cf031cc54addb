package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/freeeve/treeharness/internal/store"
)

// RunResult is the outcome of Run.
type RunResult struct {
	Plan     Plan
	Load     LoadResult
	Stats    store.Stats
	Manifest *Manifest // nil for in-memory runs
	Report   *Report   // set when the run verified its own output
}

// Run executes plan: it opens (or creates) the plan's store, loads the
// workload, writes the run manifest and closes the store. In-memory plans
// and plans with verify set also scan the final checkpoint and check it
// against a replay of the workload.
func Run(ctx context.Context, fs afero.Fs, plan Plan, verify bool, logger zerolog.Logger) (RunResult, error) {
	if plan.Scenario == Random && plan.Seed == 0 {
		plan.Seed = time.Now().UnixNano()
	}
	res := RunResult{Plan: plan}

	gen, err := plan.Generator()
	if err != nil {
		return res, err
	}

	runID := uuid.NewString()
	log := logger.With().Str("run", runID[:8]).Str("scenario", plan.Scenario.String()).Logger()

	var s *TreeStore
	if plan.InMemory() {
		s = InMemory()
		verify = true
	} else {
		if plan.Fresh {
			if err := removeStore(fs, plan.Path); err != nil {
				return res, err
			}
		}
		s, err = Open(fs, plan.Path, store.Options{PageSize: plan.PageSize, Owner: runID, Logger: log})
		if err != nil {
			return res, err
		}
	}
	defer s.Close()

	log.Info().
		Str("path", plan.Path).
		Int64("count", gen.Len()).
		Int64("checkpoint_every", plan.CheckpointEvery).
		Int("page_size", plan.PageSize).
		Msg("starting load")

	started := time.Now()
	res.Load, err = Load(ctx, gen, s, LoadConfig{
		CheckpointEvery: plan.CheckpointEvery,
		Logger:          log,
	})
	res.Stats = s.Stats()

	if !plan.InMemory() {
		m := &Manifest{
			RunID:           runID,
			Scenario:        plan.Scenario.String(),
			Count:           gen.Len(),
			CheckpointEvery: plan.CheckpointEvery,
			PageSize:        res.Stats.PageSize,
			Seed:            plan.Seed,
			Started:         started.UTC(),
			Elapsed:         res.Load.Elapsed,
			Inserted:        res.Load.Inserted,
			Final:           res.Load.Final,
			Checkpoints:     res.Load.Checkpoints,
		}
		if err != nil {
			m.Error = err.Error()
		}
		if merr := WriteManifest(fs, plan.Path, m); merr != nil {
			log.Error().Err(merr).Msg("write manifest")
			if err == nil {
				err = merr
			}
		}
		res.Manifest = m
	}
	if err != nil {
		return res, err
	}

	if verify {
		report, err := verifyRun(s, plan, res.Load.Final)
		if err != nil {
			return res, err
		}
		res.Report = &report
		log.Info().Str("report", report.String()).Msg("verified final checkpoint")
	}

	log.Info().
		Str("final_id", res.Load.Final.String()).
		Uint64("blobs", res.Stats.Blobs).
		Uint64("bytes", res.Stats.BytesStored).
		Int64("pages", res.Stats.Pages).
		Msg("run complete")
	return res, nil
}

func verifyRun(s Store, plan Plan, id store.ID) (Report, error) {
	gen, err := plan.Generator()
	if err != nil {
		return Report{}, err
	}
	exp := Expect(gen)
	scan, err := Verify(s, id, ReportErrors)
	if err != nil {
		return Report{}, err
	}
	defer scan.Close()
	return Check(scan, exp), nil
}

// removeStore deletes the store file at path and its manifest, refusing
// while a loader holds the lock.
func removeStore(fs afero.Fs, path string) error {
	if store.IsLocked(fs, path) {
		return fmt.Errorf("remove %s: %w", path, store.ErrLocked)
	}
	for _, p := range []string{path, ManifestPath(path)} {
		if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
