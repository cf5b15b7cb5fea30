// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

// SingleStatistic is the plain algorithm: no admission filter beyond
// requiring the optimize statistic to be searchable.
type SingleStatistic struct {
	base
}

func NewSingleStatistic() *SingleStatistic {
	return &SingleStatistic{base: newBase()}
}

func (a *SingleStatistic) Name() string { return "single-statistic" }

func (a *SingleStatistic) NewInstance() Algorithm { return NewSingleStatistic() }

func (a *SingleStatistic) AvailableWithWorkload(_ []string, searchable map[string]bool) bool {
	for _, ok := range searchable {
		if ok {
			return true
		}
	}
	return false
}

func (a *SingleStatistic) Initialize(params Params, replayed []Iteration) error {
	a.params = params
	a.ReInitialize()
	return replay(a, replayed)
}

func (a *SingleStatistic) GetIterationOptimizationValue(it Iteration) (float64, error) {
	return optimizeValue(it, a.params.OptimizeStatistic)
}

func (a *SingleStatistic) IsBestIterationSoFar(it Iteration) (bool, error) {
	v, err := a.GetIterationOptimizationValue(it)
	if err != nil {
		return false, err
	}
	return a.recordIfBest(it, v), nil
}
