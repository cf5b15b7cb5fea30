// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package algorithm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByName_ConstructsEachBuiltinVariant(t *testing.T) {
	cases := []struct {
		name   string
		params Params
	}{
		{"single-statistic", Params{}},
		{"cpu-constraint", Params{CPUComponent: "user"}},
		{"replication-latency-constraint", Params{ConstraintStatistic: "replication-lag"}},
		{"paired-statistic-constraint", Params{ConstraintPredicate: "value <= 500"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alg, err := ByName(tc.name, tc.params)
			require.NoError(t, err)
			require.Equal(t, tc.name, alg.Name())
		})
	}
}

func TestByName_RejectsUnknownName(t *testing.T) {
	_, err := ByName("not-a-real-algorithm", Params{})
	require.Error(t, err)
}

func TestByName_PropagatesPairedStatisticCompileError(t *testing.T) {
	_, err := ByName("paired-statistic-constraint", Params{ConstraintPredicate: "not valid expr ((("})
	require.Error(t, err)
}
