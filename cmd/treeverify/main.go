package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/freeeve/treeharness/internal/harness"
	"github.com/freeeve/treeharness/internal/logx"
	"github.com/freeeve/treeharness/internal/store"
)

func main() {
	var (
		path         = flag.String("path", "", "Store file to open")
		idFlag       = flag.String("id", "", "Checkpoint id in hex (default: last checkpoint)")
		printEntries = flag.Bool("print", false, "Print each key and its value length")
		expect       = flag.String("expect", "", "Check against this scenario's workload")
		count        = flag.Int64("n", 0, "Item count for -expect (0 = from the manifest or scenario default)")
		policyName   = flag.String("policy", "fail-fast", "Value errors: fail-fast or report")
		checkpoints  = flag.Bool("checkpoints", false, "Check every checkpoint in the run manifest is a superset of the previous one")
		logLevel     = flag.String("log-level", os.Getenv(logx.LevelEnv), "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Usage: treeverify -path <store.rdb> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logx.New(os.Stdout, level)

	policy, err := harness.ParsePolicy(*policyName)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid policy")
	}
	var id store.ID
	if *idFlag != "" {
		if id, err = store.ParseID(*idFlag); err != nil {
			logger.Fatal().Err(err).Msg("invalid checkpoint id")
		}
	}

	fs := afero.NewOsFs()
	s, err := harness.Reopen(fs, *path, store.Options{Logger: logger})
	if err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			logger.Fatal().Str("path", *path).Msg("cannot open file")
		}
		logger.Fatal().Err(err).Msg("open store")
	}
	defer s.Close()

	// the manifest is optional unless -checkpoints needs it
	manifest, merr := harness.ReadManifest(fs, *path)
	if merr != nil {
		logger.Debug().Err(merr).Msg("no run manifest")
	}

	if *checkpoints {
		if manifest == nil {
			s.Close()
			logger.Fatal().Err(merr).Msg("-checkpoints needs the run manifest")
		}
		ids := manifest.CheckpointIDs()
		if err := harness.CheckMonotonic(s, ids); err != nil {
			s.Close()
			logger.Fatal().Err(err).Msg("checkpoint check failed")
		}
		logger.Info().Int("checkpoints", len(ids)).Msg("checkpoints are monotonic")
	}

	scan, err := harness.Verify(s, id, policy)
	if err != nil {
		s.Close()
		logger.Fatal().Err(err).Msg("load checkpoint")
	}
	logger.Info().
		Str("id", scan.ID().String()).
		Int("entries", scan.Len()).
		Str("policy", policy.String()).
		Msg("scanning checkpoint")

	if *printEntries || *expect == "" {
		if err := printScan(scan, *printEntries, logger); err != nil {
			s.Close()
			logger.Fatal().Err(err).Msg("scan failed")
		}
	}
	scan.Close()

	if *expect != "" {
		plan, err := expectedPlan(*expect, *count, manifest)
		if err != nil {
			s.Close()
			logger.Fatal().Err(err).Msg("invalid -expect")
		}
		gen, err := plan.Generator()
		if err != nil {
			s.Close()
			logger.Fatal().Err(err).Msg("build workload")
		}
		exp := harness.Expect(gen)

		scan, err := harness.Verify(s, id, policy)
		if err != nil {
			s.Close()
			logger.Fatal().Err(err).Msg("load checkpoint")
		}
		report := harness.Check(scan, exp)
		scan.Close()
		if !report.OK() {
			s.Close()
			logger.Fatal().Str("report", report.String()).Msg("verification failed")
		}
		logger.Info().Int64("entries", report.Entries).Msg("checkpoint matches workload")
	}
}

// printScan drains scan, printing entries to stdout when verbose is set.
func printScan(scan *harness.Scan, verbose bool, logger zerolog.Logger) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	var failed int
	for scan.Next() {
		e := scan.Entry()
		if e.Err != nil {
			failed++
			logger.Warn().Err(e.Err).Bytes("key", e.Key).Msg("value unreadable")
		}
		if verbose {
			fmt.Fprintf(w, "%q %d\n", e.Key, e.ValueLen)
		}
	}
	if err := scan.Err(); err != nil {
		return err
	}
	logger.Info().
		Int64("entries", scan.Entries()).
		Int("unreadable", failed).
		Msg("scan complete")
	return nil
}

// expectedPlan rebuilds the plan a store was loaded with, taking the
// count and seed from the manifest when it matches the scenario.
func expectedPlan(name string, n int64, m *harness.Manifest) (harness.Plan, error) {
	sc, err := harness.ParseScenario(name)
	if err != nil {
		return harness.Plan{}, err
	}
	if m != nil && m.Scenario == sc.String() {
		if n == 0 {
			n = m.Count
		}
		plan := harness.DefaultPlan(sc, n)
		plan.Seed = m.Seed
		return plan, nil
	}
	if sc == harness.Random {
		return harness.Plan{}, errors.New("random workloads can only be replayed from a run manifest")
	}
	return harness.DefaultPlan(sc, n), nil
}
