// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package algorithm implements the pluggable optimization-algorithm
// capability an Optimizing Job consults once per child-iteration
// completion to decide whether that iteration is the best seen so far.
package algorithm

import (
	"math"

	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// OptimizeType selects whether a higher or lower statistic value wins.
type OptimizeType string

const (
	Maximize OptimizeType = "maximize"
	Minimize OptimizeType = "minimize"
)

// Iteration is the data an Optimizing Job hands the algorithm for one
// completed child job.
type Iteration struct {
	JobID    jobid.ID
	Threads  int
	Trackers map[string]stats.Tracker // keyed by DisplayName
}

// Algorithm is the capability every optimization policy implements.
type Algorithm interface {
	Name() string
	NewInstance() Algorithm
	AvailableWithWorkload(statTrackerDisplayNames []string, searchable map[string]bool) bool

	// Initialize configures the algorithm's parameters and replays
	// already-completed iterations (in their stored total order) to
	// restore bestValueSoFar after a restart.
	Initialize(params Params, replay []Iteration) error

	// ReInitialize clears the running best-so-far cache but keeps the
	// configured parameters, for a fresh optimizing-job run.
	ReInitialize()

	// IsBestIterationSoFar applies the algorithm's admission filter (if
	// any) and then the core maximize/minimize comparison.
	IsBestIterationSoFar(it Iteration) (bool, error)

	// GetIterationOptimizationValue returns the optimize statistic's
	// summary value for the given iteration.
	GetIterationOptimizationValue(it Iteration) (float64, error)
}

// Params configures an algorithm instance. Fields not used by a given
// algorithm variant are simply ignored.
type Params struct {
	OptimizeStatistic   string
	OptimizeType        OptimizeType
	MinPctImprovement   float64
	MaxUtilization       float64 // cpuconstraint
	CPUComponent         string  // cpuconstraint: stacked component name, e.g. "user"
	MaxLatency           float64 // replicationlatency
	MaxIncreasePct       float64 // replicationlatency
	ConstraintStatistic  string  // pairedstat
	ConstraintPredicate  string  // pairedstat, e.g. "value <= 500"
}

// base holds the state and comparison logic shared by every built-in
// algorithm variant: the running best-so-far value and the core
// maximize/minimize decision rule from SPEC_FULL.md §4.7.
type base struct {
	params       Params
	bestValue    float64
	bestJobID    jobid.ID
	bestThreads  int
	initialized  bool
}

func newBase() base {
	return base{bestValue: math.NaN()}
}

func (b *base) ReInitialize() {
	b.bestValue = math.NaN()
	b.bestJobID = ""
	b.bestThreads = 0
}

// beats implements the shared comparison: given optimizeType and
// minPctImprovement, does v beat best?
//
//	maximize: v > best && v > best + best*minPctImprovement
//	minimize: v < best && v < best - best*minPctImprovement
//	best is NaN, v is not: v wins
//	best is NaN, v is NaN: neither wins
func beats(optimizeType OptimizeType, best, v, minPctImprovement float64) bool {
	if math.IsNaN(best) {
		return !math.IsNaN(v)
	}
	if math.IsNaN(v) {
		return false
	}
	switch optimizeType {
	case Minimize:
		return v < best && v < best-best*minPctImprovement
	default: // Maximize
		return v > best && v > best+best*minPctImprovement
	}
}

func (b *base) recordIfBest(it Iteration, v float64) bool {
	if beats(b.params.OptimizeType, b.bestValue, v, b.params.MinPctImprovement) {
		b.bestValue = v
		b.bestJobID = it.JobID
		b.bestThreads = it.Threads
		return true
	}
	return false
}

// optimizeValue extracts the optimize statistic's summary value from an
// iteration's trackers, failing if the statistic is absent or not
// searchable.
func optimizeValue(it Iteration, statName string) (float64, error) {
	tr, ok := it.Trackers[statName]
	if !ok {
		return 0, errors.NewLoadgenError(errors.ErrorCodeAlgorithmDataMissing,
			"optimize statistic \""+statName+"\" not present in iteration trackers")
	}
	if !tr.IsSearchable() {
		return 0, errors.NewLoadgenError(errors.ErrorCodeNonSearchableStat,
			"optimize statistic \""+statName+"\" is not searchable")
	}
	return tr.GetSummaryValue(), nil
}

// replay re-runs Initialize's "restore bestValueSoFar" step over
// already-completed iterations, in their given (already total-ordered)
// order, by feeding each one through isBest in turn.
func replay(a Algorithm, replayed []Iteration) error {
	for _, it := range replayed {
		if _, err := a.IsBestIterationSoFar(it); err != nil {
			return err
		}
	}
	return nil
}
