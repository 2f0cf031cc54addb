package harness

import (
	"context"
	"fmt"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/rs/zerolog"

	"github.com/freeeve/treeharness/internal/store"
	"github.com/freeeve/treeharness/internal/workload"
)

// LoadConfig controls Load. The zero value inserts everything and
// checkpoints once at the end.
type LoadConfig struct {
	// CheckpointEvery reattaches after every N inserts; 0 disables
	// periodic checkpoints.
	CheckpointEvery int64

	// ProgressEvery is the interval between progress log lines.
	// 0 means 10s, negative disables progress logging.
	ProgressEvery time.Duration

	// LatencyWindow is the number of checkpoints averaged in progress
	// logs, default 16.
	LatencyWindow int

	// OnCheckpoint, if set, is called after every successful checkpoint,
	// including the final one.
	OnCheckpoint func(Checkpoint)

	Logger zerolog.Logger
}

// Checkpoint records one successful reattach.
type Checkpoint struct {
	ID       store.ID      `json:"id"`
	Inserted int64         `json:"inserted"`
	Took     time.Duration `json:"took_ns"`
}

// LoadResult summarises a completed (or aborted) load.
type LoadResult struct {
	Final       store.ID // zero if the load aborted
	Inserted    int64
	Checkpoints []Checkpoint
	Elapsed     time.Duration

	// AvgCheckpoint is the moving average of the last LatencyWindow
	// checkpoint durations.
	AvgCheckpoint time.Duration
}

// Load inserts every item of gen into a new tree from s, reattaching every
// cfg.CheckpointEvery inserts and once more at the end.
//
// Any insert or reattach failure aborts the load. The returned result
// then lists the checkpoints that did succeed; inserts after the last of
// them are not durable.
func Load(ctx context.Context, gen workload.Generator, s Store, cfg LoadConfig) (LoadResult, error) {
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 10 * time.Second
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 16
	}
	log := cfg.Logger

	var res LoadResult
	latency := movingaverage.New(cfg.LatencyWindow)
	startTime := time.Now()
	lastLog := startTime

	checkpoint := func(t Tree) error {
		start := time.Now()
		id, err := t.Reattach()
		if err != nil {
			return fmt.Errorf("checkpoint after %d inserts: %w", res.Inserted, err)
		}
		took := time.Since(start)
		latency.Add(float64(took.Nanoseconds()))
		res.AvgCheckpoint = time.Duration(latency.Avg())

		// reattaching with nothing pending returns the previous root
		if n := len(res.Checkpoints); n > 0 && res.Checkpoints[n-1].ID == id {
			return nil
		}
		cp := Checkpoint{ID: id, Inserted: res.Inserted, Took: took}
		res.Checkpoints = append(res.Checkpoints, cp)
		log.Debug().
			Str("id", id.String()).
			Int64("inserted", cp.Inserted).
			Dur("took", took).
			Msg("checkpoint")
		if cfg.OnCheckpoint != nil {
			cfg.OnCheckpoint(cp)
		}
		return nil
	}

	t := s.Empty()
	for {
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(startTime)
			return res, fmt.Errorf("load interrupted after %d inserts: %w", res.Inserted, ctx.Err())
		default:
		}

		item, ok := gen.Next()
		if !ok {
			break
		}
		if err := t.Insert(item.Key, item.Value); err != nil {
			res.Elapsed = time.Since(startTime)
			return res, fmt.Errorf("insert item %d: %w", res.Inserted, err)
		}
		res.Inserted++

		if cfg.CheckpointEvery > 0 && res.Inserted%cfg.CheckpointEvery == 0 {
			if err := checkpoint(t); err != nil {
				res.Elapsed = time.Since(startTime)
				return res, err
			}
		}

		if cfg.ProgressEvery > 0 && time.Since(lastLog) > cfg.ProgressEvery {
			elapsed := time.Since(startTime)
			log.Info().
				Int64("inserted", res.Inserted).
				Int64("total", gen.Len()).
				Int("checkpoints", len(res.Checkpoints)).
				Float64("inserts_per_sec", float64(res.Inserted)/elapsed.Seconds()).
				Dur("avg_checkpoint", res.AvgCheckpoint).
				Msg("load progress")
			lastLog = time.Now()
		}
	}

	if err := checkpoint(t); err != nil {
		res.Elapsed = time.Since(startTime)
		return res, err
	}
	res.Final = res.Checkpoints[len(res.Checkpoints)-1].ID
	res.Elapsed = time.Since(startTime)

	log.Info().
		Int64("inserted", res.Inserted).
		Int("entries", t.Len()).
		Int("checkpoints", len(res.Checkpoints)).
		Str("final_id", res.Final.String()).
		Dur("elapsed", res.Elapsed).
		Msg("load complete")
	return res, nil
}
