package harness

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/treeharness/internal/store"
	"github.com/freeeve/treeharness/internal/workload"
)

// ErrUnknownScenario is returned for scenario names ParseScenario does
// not know.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a named workload with its checkpoint cadence.
type Scenario int

const (
	// Literal loads three fixed keys sharing prefixes.
	Literal Scenario = iota
	// Single loads one key.
	Single
	// FatWords keys by number words with a value of the decimal index
	// repeated 10000 times.
	FatWords
	// Words keys by number words with the value "1".
	Words
	// Random loads 1024 byte printable keys.
	Random
	// Decimal loads decimal keys and values into memory.
	Decimal
)

var scenarioNames = []string{
	Literal:  "literal",
	Single:   "single",
	FatWords: "fat-words",
	Words:    "words",
	Random:   "random",
	Decimal:  "decimal",
}

func (s Scenario) String() string {
	if s >= 0 && int(s) < len(scenarioNames) {
		return scenarioNames[s]
	}
	return "scenario(" + strconv.Itoa(int(s)) + ")"
}

// ParseScenario maps a name from Scenario.String back to the scenario.
func ParseScenario(name string) (Scenario, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, n := range scenarioNames {
		if n == name {
			return Scenario(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
}

// FatValueRepeat is how many times FatWords repeats the index in a value.
const FatValueRepeat = 10000

// Plan is everything needed to run one scenario.
type Plan struct {
	Scenario        Scenario
	Count           int64 // ignored by Literal and Single
	CheckpointEvery int64 // 0: only the final checkpoint
	Path            string
	PageSize        int
	Seed            int64 // Random only; 0 seeds from the clock
	Fresh           bool  // remove an existing store file first
}

// InMemory reports whether the plan loads into a memory store.
func (p Plan) InMemory() bool { return p.Scenario == Decimal }

// DefaultPlan fills in the count, checkpoint cadence and file name the
// scenario is usually run with. n <= 0 keeps the scenario's default count.
func DefaultPlan(sc Scenario, n int64) Plan {
	p := Plan{Scenario: sc, PageSize: store.DefaultPageSize}
	switch sc {
	case Literal:
		p.Count = 3
		p.Path = "test1.rdb"
	case Single:
		p.Count = 1
		p.Path = "test4.rdb"
	case FatWords:
		p.Count = pick(n, 1_000)
		p.Path = fmt.Sprintf("fat%d.rdb", p.Count)
	case Words:
		p.Count = pick(n, 1_000_000)
		p.CheckpointEvery = 100_000
		p.Path = fmt.Sprintf("testnormal%d.rdb", p.Count)
	case Random:
		p.Count = pick(n, 100_000)
		p.CheckpointEvery = 10_000
		p.Path = fmt.Sprintf("test%d.rdb", p.Count)
	case Decimal:
		p.Count = pick(n, 20_000)
	}
	return p
}

func pick(n, def int64) int64 {
	if n > 0 {
		return n
	}
	return def
}

// Sweep returns default plans for counts 10, 100, ... 10^maxPow.
func Sweep(sc Scenario, maxPow int) []Plan {
	var plans []Plan
	n := int64(1)
	for i := 0; i < maxPow; i++ {
		n *= 10
		plans = append(plans, DefaultPlan(sc, n))
	}
	return plans
}

// Generator builds the plan's workload.
func (p Plan) Generator() (workload.Generator, error) {
	switch p.Scenario {
	case Literal:
		return workload.Pairs("helloworld", "hi", "helloworld1", "hi", "hi", "hi"), nil
	case Single:
		return workload.Pairs("SREDAEH", "1"), nil
	case FatWords:
		return workload.Build(workload.Words, p.Count, workload.Options{Payload: workload.RepeatIndex(FatValueRepeat)})
	case Words:
		return workload.Build(workload.Words, p.Count, workload.Options{})
	case Random:
		seed := p.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return workload.Build(workload.Random, p.Count, workload.Options{Rand: rand.New(rand.NewSource(seed))})
	case Decimal:
		return workload.Build(workload.Decimal, p.Count, workload.Options{})
	default:
		return nil, fmt.Errorf("%s: %w", p.Scenario, ErrUnknownScenario)
	}
}

// ParseSize parses sizes like "4096", "64k" or "1m" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	multiplier := int64(1)
	if strings.HasSuffix(s, "k") {
		multiplier = 1024
		s = s[:len(s)-1]
	} else if strings.HasSuffix(s, "m") {
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	} else if strings.HasSuffix(s, "g") {
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size %d*%d overflows int64", n, multiplier)
	}
	return n * multiplier, nil
}
