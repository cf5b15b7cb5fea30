// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jontk/loadgen/pkg/errors"
)

// PairedStatistic rejects iterations whose constraint-statistic summary
// value fails a compiled predicate, e.g. "value <= 500" or
// "value >= 0.95". The constraint statistic must differ from the
// optimize statistic.
type PairedStatistic struct {
	base
	program *vm.Program
}

// NewPairedStatistic compiles predicate once at construction; predicate
// must reference the bound variable "value" and evaluate to a bool.
func NewPairedStatistic(predicate string) (*PairedStatistic, error) {
	program, err := expr.Compile(predicate, expr.Env(map[string]any{"value": 0.0}), expr.AsBool())
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid paired-statistic constraint predicate", "ConstraintPredicate", predicate, err)
	}
	return &PairedStatistic{base: newBase(), program: program}, nil
}

func (a *PairedStatistic) Name() string { return "paired-statistic-constraint" }

func (a *PairedStatistic) NewInstance() Algorithm {
	clone, _ := NewPairedStatistic(a.params.ConstraintPredicate)
	return clone
}

func (a *PairedStatistic) AvailableWithWorkload(_ []string, searchable map[string]bool) bool {
	for _, ok := range searchable {
		if ok {
			return true
		}
	}
	return false
}

func (a *PairedStatistic) Initialize(params Params, replayed []Iteration) error {
	if params.ConstraintStatistic == params.OptimizeStatistic {
		return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"constraint statistic must differ from the optimize statistic",
			"ConstraintStatistic", params.ConstraintStatistic, nil)
	}
	program, err := expr.Compile(params.ConstraintPredicate, expr.Env(map[string]any{"value": 0.0}), expr.AsBool())
	if err != nil {
		return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid paired-statistic constraint predicate", "ConstraintPredicate", params.ConstraintPredicate, err)
	}
	a.program = program
	a.params = params
	a.ReInitialize()
	return replay(a, replayed)
}

func (a *PairedStatistic) GetIterationOptimizationValue(it Iteration) (float64, error) {
	return optimizeValue(it, a.params.OptimizeStatistic)
}

func (a *PairedStatistic) satisfiesConstraint(it Iteration) (bool, error) {
	v, err := optimizeValue(it, a.params.ConstraintStatistic)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(a.program, map[string]any{"value": v})
	if err != nil {
		return false, errors.NewLoadgenError(errors.ErrorCodeAlgorithmDataMissing, "constraint predicate evaluation failed")
	}
	result, _ := out.(bool)
	return result, nil
}

func (a *PairedStatistic) IsBestIterationSoFar(it Iteration) (bool, error) {
	ok, err := a.satisfiesConstraint(it)
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
