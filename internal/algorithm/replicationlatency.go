// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

import (
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// ReplicationLatency rejects iterations whose average replication
// latency exceeds MaxLatency, or whose latency increased from the
// first quarter of collection intervals to the last quarter by more
// than MaxIncreasePct percent.
type ReplicationLatency struct {
	base
	latencyTrackerName string
}

func NewReplicationLatency(latencyTrackerName string) *ReplicationLatency {
	return &ReplicationLatency{base: newBase(), latencyTrackerName: latencyTrackerName}
}

func (a *ReplicationLatency) Name() string { return "replication-latency-constraint" }

func (a *ReplicationLatency) NewInstance() Algorithm {
	return NewReplicationLatency(a.latencyTrackerName)
}

func (a *ReplicationLatency) AvailableWithWorkload(displayNames []string, searchable map[string]bool) bool {
	hasLatency := false
	for _, n := range displayNames {
		if n == a.latencyTrackerName {
			hasLatency = true
			break
		}
	}
	if !hasLatency {
		return false
	}
	for _, ok := range searchable {
		if ok {
			return true
		}
	}
	return false
}

func (a *ReplicationLatency) Initialize(params Params, replayed []Iteration) error {
	a.params = params
	a.ReInitialize()
	return replay(a, replayed)
}

func (a *ReplicationLatency) GetIterationOptimizationValue(it Iteration) (float64, error) {
	return optimizeValue(it, a.params.OptimizeStatistic)
}

func (a *ReplicationLatency) checkLatency(it Iteration) (bool, error) {
	tr, ok := it.Trackers[a.latencyTrackerName]
	if !ok {
		return false, errors.NewLoadgenError(errors.ErrorCodeAlgorithmDataMissing,
			"no replication-latency data present for tracker \""+a.latencyTrackerName+"\"")
	}
	dur, ok := tr.(*stats.Duration)
	if !ok {
		return false, errors.NewLoadgenError(errors.ErrorCodeAlgorithmDataMissing,
			"replication-latency tracker \""+a.latencyTrackerName+"\" is not a duration tracker")
	}

	if dur.AverageDuration().Seconds() > a.params.MaxLatency {
		return false, nil
	}

	averages := dur.IntervalAverages()
	if len(averages) < 4 {
		return true, nil
	}
	quarter := len(averages) / 4
	firstQuarter := mean(averages[:quarter])
	lastQuarter := mean(averages[len(averages)-quarter:])
	if firstQuarter <= 0 {
		return true, nil
	}
	increasePct := (lastQuarter - firstQuarter) / firstQuarter * 100
	return increasePct <= a.params.MaxIncreasePct, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (a *ReplicationLatency) IsBestIterationSoFar(it Iteration) (bool, error) {
	ok, err := a.checkLatency(it)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	v, err := a.GetIterationOptimizationValue(it)
	if err != nil {
		return false, err
	}
	return a.recordIfBest(it, v), nil
}
