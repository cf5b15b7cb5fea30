// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncremental_AggregateAndSummary(t *testing.T) {
	a := NewIncremental("client-1", "thread-0", "ops-completed", time.Second, true)
	a.Increment(0, 10)
	a.Increment(1, 20)

	b := NewIncremental("client-2", "thread-0", "ops-completed", time.Second, true)
	b.Increment(0, 5)
	b.Increment(1, 5)
	b.Increment(2, 5) // longer series than a

	merged, err := a.Aggregate(b)
	require.NoError(t, err)
	m := merged.(*Incremental)
	assert.Equal(t, 3, m.NumIntervals())
	assert.Equal(t, int64(15), m.counts[0])
	assert.Equal(t, int64(25), m.counts[1])
	assert.Equal(t, int64(5), m.counts[2])

	total := float64(15+25+5) / 3.0
	assert.InDelta(t, total, m.GetSummaryValue(), 0.0001)
}

func TestIncremental_AggregateVariantMismatch(t *testing.T) {
	a := NewIncremental("c1", "t0", "ops", time.Second, true)
	b := NewDuration("c2", "t0", "ops", time.Second, true)
	_, err := a.Aggregate(b)
	assert.Error(t, err)
}

func TestIncremental_AggregateKeyMismatch(t *testing.T) {
	a := NewIncremental("c1", "t0", "ops", time.Second, true)
	b := NewIncremental("c2", "t0", "other-ops", time.Second, true)
	_, err := a.Aggregate(b)
	assert.Error(t, err)
}

func TestDuration_AverageAndAggregate(t *testing.T) {
	a := NewDuration("c1", "t0", "request-latency", time.Second, true)
	a.Record(0, 100*time.Millisecond)
	a.Record(0, 200*time.Millisecond)

	b := NewDuration("c2", "t0", "request-latency", time.Second, true)
	b.Record(0, 300*time.Millisecond)

	merged, err := a.Aggregate(b)
	require.NoError(t, err)
	m := merged.(*Duration)
	assert.Equal(t, 200*time.Millisecond, m.AverageDuration())
	assert.InDelta(t, 200.0, m.GetSummaryValue(), 0.001)
}

func TestCategorical_RecordAndAggregate(t *testing.T) {
	a := NewCategorical("c1", "t0", "response-codes", time.Second, false)
	a.Record(0, "200")
	a.Record(0, "200")
	a.Record(1, "500")

	b := NewCategorical("c2", "t0", "response-codes", time.Second, false)
	b.Record(0, "200")
	b.Record(1, "500")

	merged, err := a.Aggregate(b)
	require.NoError(t, err)
	m := merged.(*Categorical)
	assert.Equal(t, int64(3), m.CategoryTotal("200"))
	assert.Equal(t, int64(2), m.CategoryTotal("500"))
	assert.Equal(t, float64(5), m.GetSummaryValue())
	assert.False(t, m.IsSearchable())
}

func TestIntegerValued_AverageAndAggregate(t *testing.T) {
	a := NewIntegerValued("c1", "t0", "queue-depth", time.Second, true)
	a.Sample(0, 2)
	a.Sample(0, 4)

	b := NewIntegerValued("c2", "t0", "queue-depth", time.Second, true)
	b.Sample(0, 6)

	merged, err := a.Aggregate(b)
	require.NoError(t, err)
	m := merged.(*IntegerValued)
	assert.InDelta(t, 4.0, m.AverageValue(), 0.0001)
	assert.InDelta(t, 4.0, m.GetSummaryValue(), 0.0001)
}

func TestStacked_PerComponentAverageAndAggregate(t *testing.T) {
	a := NewStacked("c1", "t0", "txn-phases", time.Second, true)
	a.Record(0, "bind", 10)
	a.Record(0, "search", 20)

	b := NewStacked("c2", "t0", "txn-phases", time.Second, true)
	b.Record(0, "bind", 30)

	merged, err := a.Aggregate(b)
	require.NoError(t, err)
	m := merged.(*Stacked)
	assert.InDelta(t, 20.0, m.GetAverageValue("bind"), 0.0001)
	assert.InDelta(t, 20.0, m.GetAverageValue("search"), 0.0001)
	assert.ElementsMatch(t, []string{"bind", "search"}, m.ComponentNames())
}

func TestNewInstance_PreservesKeyNotData(t *testing.T) {
	a := NewIncremental("c1", "t0", "ops", 5*time.Second, true)
	a.Increment(0, 99)

	fresh := a.NewInstance("c1", "t1")
	f, ok := fresh.(*Incremental)
	require.True(t, ok)
	assert.Equal(t, "ops", f.DisplayName())
	assert.Equal(t, 5*time.Second, f.CollectionInterval())
	assert.Equal(t, 0, f.NumIntervals())
	assert.Equal(t, "t1", f.ThreadID())
}

func TestStartStop(t *testing.T) {
	a := NewIncremental("c1", "t0", "ops", time.Second, true)
	a.Start()
	assert.True(t, a.running)
	a.Stop()
	assert.False(t, a.running)
}
