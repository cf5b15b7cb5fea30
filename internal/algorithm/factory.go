// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

import "github.com/jontk/loadgen/pkg/errors"

// ByName constructs a fresh Algorithm instance for one of the four
// built-in variants, the set internal/adminapi's Optimizing Job
// submission endpoint offers by name. params.CPUComponent and
// params.ConstraintStatistic double as the tracker name each
// constraint variant needs at construction time; params.ConstraintPredicate
// is the paired-statistic variant's comparison expression.
func ByName(name string, params Params) (Algorithm, error) {
	switch name {
	case "single-statistic":
		return NewSingleStatistic(), nil
	case "cpu-constraint":
		return NewCPUConstraint(params.CPUComponent), nil
	case "replication-latency-constraint":
		return NewReplicationLatency(params.ConstraintStatistic), nil
	case "paired-statistic-constraint":
		return NewPairedStatistic(params.ConstraintPredicate)
	default:
		return nil, errors.NewValidationErrorf("algorithmName", name,
			"unknown optimization algorithm %q", name)
	}
}
