// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	now := time.Date(2026, 7, 15, 12, 30, 45, 0, time.UTC)
	id := New(now, 7)

	p, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "20260715123045", p.Date14)
	assert.Len(t, p.Rand6, 6)
	assert.Equal(t, 7, p.Counter)
	assert.False(t, p.HasIteration)
	assert.False(t, p.IsRerun)
}

func TestNewChildAndRerunChild(t *testing.T) {
	now := time.Date(2026, 7, 15, 12, 30, 45, 0, time.UTC)
	root := New(now, 1)

	child := NewChild(root, 4)
	p, err := Parse(child)
	require.NoError(t, err)
	assert.True(t, p.HasIteration)
	assert.Equal(t, 4, p.Iteration)
	assert.False(t, p.IsRerun)

	rerun := NewRerunChild(root, 2)
	pr, err := Parse(rerun)
	require.NoError(t, err)
	assert.True(t, pr.HasIteration)
	assert.Equal(t, 2, pr.Iteration)
	assert.True(t, pr.IsRerun)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		id   ID
	}{
		{"no segments", "notanid"},
		{"short date", "2026071512-abc12312"},
		{"bad date", "99999999999999-abc12312"},
		{"short rand+counter", "20260715123045-ab1"},
		{"non-numeric counter", "20260715123045-abcdef1x"},
		{"non-numeric iteration", "20260715123045-abcdef1-x"},
		{"missing rerun tag", "20260715123045-abcdef1-4-nope"},
		{"too many segments", "20260715123045-abcdef1-4-rerun-extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.id)
			assert.Error(t, err)
		})
	}
}

func TestCompare_DatesAndCounters(t *testing.T) {
	earlier := ID("20260715120000-abcdef1")
	later := ID("20260715130000-abcdef1")
	assert.Equal(t, -1, Compare(earlier, later))
	assert.Equal(t, 1, Compare(later, earlier))

	lowCounter := ID("20260715120000-abcdef1")
	highCounter := ID("20260715120000-abcdef9")
	assert.Equal(t, -1, Compare(lowCounter, highCounter))
}

func TestCompare_IterationOrdering(t *testing.T) {
	base := ID("20260715120000-abcdef1")
	iter2 := NewChild(base, 2)
	iter4 := NewChild(base, 4)
	rerun := NewRerunChild(base, 2)

	// iteration-less base orders before any iteration child
	assert.Equal(t, -1, Compare(base, iter2))
	assert.Equal(t, 1, Compare(iter2, base))

	// numeric iterations compare by thread count
	assert.Equal(t, -1, Compare(iter2, iter4))
	assert.Equal(t, 1, Compare(iter4, iter2))

	// rerun orders after all numeric iterations of the same optimizing job
	assert.Equal(t, 1, Compare(rerun, iter4))
	assert.Equal(t, -1, Compare(iter4, rerun))
	assert.Equal(t, 1, Compare(rerun, iter2))
}

func TestCompare_RandomPrefixIgnored(t *testing.T) {
	a := ID("20260715120000-aaaaaa5")
	b := ID("20260715120000-zzzzzz5")
	assert.Equal(t, 0, Compare(a, b))
}

func TestLess(t *testing.T) {
	base := ID("20260715120000-abcdef1")
	iter2 := NewChild(base, 2)
	assert.True(t, Less(base, iter2))
	assert.False(t, Less(iter2, base))
}

func TestRootOf(t *testing.T) {
	base := ID("20260715120000-abcdef1")
	iter2 := NewChild(base, 2)
	rerun := NewRerunChild(base, 2)

	root, err := RootOf(iter2)
	require.NoError(t, err)
	assert.Equal(t, base, root)

	root2, err := RootOf(rerun)
	require.NoError(t, err)
	assert.Equal(t, base, root2)

	root3, err := RootOf(base)
	require.NoError(t, err)
	assert.Equal(t, base, root3)
}
