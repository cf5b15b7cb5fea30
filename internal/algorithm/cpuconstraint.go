// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

import (
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// CPUConstraint rejects iterations whose CPU utilization — reported
// either as a Stacked tracker (user/system/idle components) or an
// IntegerValued tracker (a single utilization series) — exceeds
// MaxUtilization, before applying the core comparison.
type CPUConstraint struct {
	base
	cpuTrackerName string
}

func NewCPUConstraint(cpuTrackerName string) *CPUConstraint {
	return &CPUConstraint{base: newBase(), cpuTrackerName: cpuTrackerName}
}

func (a *CPUConstraint) Name() string { return "cpu-constraint" }

func (a *CPUConstraint) NewInstance() Algorithm { return NewCPUConstraint(a.cpuTrackerName) }

func (a *CPUConstraint) AvailableWithWorkload(displayNames []string, searchable map[string]bool) bool {
	hasCPU := false
	for _, n := range displayNames {
		if n == a.cpuTrackerName {
			hasCPU = true
			break
		}
	}
	if !hasCPU {
		return false
	}
	for _, ok := range searchable {
		if ok {
			return true
		}
	}
	return false
}

func (a *CPUConstraint) Initialize(params Params, replayed []Iteration) error {
	a.params = params
	a.ReInitialize()
	return replay(a, replayed)
}

func (a *CPUConstraint) GetIterationOptimizationValue(it Iteration) (float64, error) {
	return optimizeValue(it, a.params.OptimizeStatistic)
}

// cpuUtilization returns the monitored utilization for the configured
// component, accepting either a Stacked tracker (component name looked
// up directly) or an IntegerValued tracker (its single summary value).
func (a *CPUConstraint) cpuUtilization(it Iteration) (float64, error) {
	tr, ok := it.Trackers[a.cpuTrackerName]
	if !ok {
		return 0, errors.NewLoadgenError(errors.ErrorCodeAlgorithmDataMissing,
			"no CPU utilization data present for tracker \""+a.cpuTrackerName+"\"")
	}
	switch v := tr.(type) {
	case *stats.Stacked:
		component := a.params.CPUComponent
		if component == "" {
			component = "user"
		}
		return v.GetAverageValue(component), nil
	case *stats.IntegerValued:
		return v.GetSummaryValue(), nil
	default:
		return tr.GetSummaryValue(), nil
	}
}

func (a *CPUConstraint) IsBestIterationSoFar(it Iteration) (bool, error) {
	util, err := a.cpuUtilization(it)
	if err != nil {
		return false, err
	}
	if util > a.params.MaxUtilization {
		return false, nil
	}
	v, err := a.GetIterationOptimizationValue(it)
	if err != nil {
		return false, err
	}
	return a.recordIfBest(it, v), nil
}
