package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/freeeve/treeharness/internal/harness"
	"github.com/freeeve/treeharness/internal/logx"
)

func main() {
	defaultPageSize := os.Getenv("TREEHARNESS_PAGE_SIZE")
	if defaultPageSize == "" {
		defaultPageSize = "1m"
	}

	var (
		scenarioName    = flag.String("scenario", "words", "Workload: literal, single, fat-words, words, random, decimal")
		path            = flag.String("path", "", "Store file (default depends on the scenario and count)")
		count           = flag.Int64("n", 0, "Number of items (0 = scenario default)")
		checkpointEvery = flag.Int64("checkpoint-every", -1, "Checkpoint every N inserts (-1 = scenario default, 0 = only at the end)")
		pageSizeFlag    = flag.String("page-size", defaultPageSize, "Store page size, e.g. 4k or 1m")
		seed            = flag.Int64("seed", 0, "Random scenario seed (0 = clock)")
		sweep           = flag.Int("sweep", 0, "Run counts 10, 100, ... 10^N instead of -n")
		fresh           = flag.Bool("fresh", false, "Remove an existing store file first")
		verify          = flag.Bool("verify", false, "Reopen the final checkpoint and check it against the workload")
		logLevel        = flag.String("log-level", os.Getenv(logx.LevelEnv), "Log level: debug, info, warn, error")
	)
	flag.Parse()

	scenario, err := harness.ParseScenario(*scenarioName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logx.New(os.Stdout, level)

	pageSize, err := harness.ParseSize(*pageSizeFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid page size")
	}

	var plans []harness.Plan
	if *sweep > 0 {
		plans = harness.Sweep(scenario, *sweep)
	} else {
		p := harness.DefaultPlan(scenario, *count)
		if *path != "" {
			p.Path = *path
		}
		plans = []harness.Plan{p}
	}
	for i := range plans {
		if *checkpointEvery >= 0 {
			plans[i].CheckpointEvery = *checkpointEvery
		}
		if pageSize > 0 {
			plans[i].PageSize = int(pageSize)
		}
		plans[i].Seed = *seed
		plans[i].Fresh = *fresh
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fs := afero.NewOsFs()
	for _, plan := range plans {
		res, err := harness.Run(ctx, fs, plan, *verify, logger)
		if err != nil {
			logger.Fatal().Err(err).
				Str("path", plan.Path).
				Int64("inserted", res.Load.Inserted).
				Int("checkpoints", len(res.Load.Checkpoints)).
				Msg("load failed")
		}
		if res.Report != nil && !res.Report.OK() {
			logger.Fatal().Str("report", res.Report.String()).Msg("verification failed")
		}

		elapsed := res.Load.Elapsed
		logger.Info().
			Str("path", plan.Path).
			Int64("inserted", res.Load.Inserted).
			Int("checkpoints", len(res.Load.Checkpoints)).
			Dur("elapsed", elapsed).
			Float64("inserts_per_sec", float64(res.Load.Inserted)/elapsed.Seconds()).
			Msg("load complete")
		// final checkpoint id on its own line for scripts
		fmt.Println(res.Load.Final)
	}
}
