// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// IntegerValued tracks a set of discrete integer samples per collection
// interval (queue depth, active connection count, batch size).
// GetSummaryValue reports the average across every sample recorded.
type IntegerValued struct {
	base
	intervals [][]int64
}

// NewIntegerValued returns a zeroed integer-valued tracker.
func NewIntegerValued(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) *IntegerValued {
	return &IntegerValued{base: newBase(clientID, threadID, displayName, collectionInterval, searchable)}
}

// NewIntegerValuedFromIntervals rebuilds an integer-valued tracker from
// its raw per-interval samples, as decoded off the wire.
func NewIntegerValuedFromIntervals(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool, intervals [][]int64) *IntegerValued {
	t := NewIntegerValued(clientID, threadID, displayName, collectionInterval, searchable)
	t.intervals = make([][]int64, len(intervals))
	for i, samples := range intervals {
		t.intervals[i] = append([]int64(nil), samples...)
	}
	return t
}

// Intervals returns a copy of the per-interval samples, for wire
// encoding.
func (t *IntegerValued) Intervals() [][]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]int64, len(t.intervals))
	for i, samples := range t.intervals {
		out[i] = append([]int64(nil), samples...)
	}
	return out
}

// Sample records one observation within interval.
func (t *IntegerValued) Sample(interval int, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(interval)
	t.intervals[interval] = append(t.intervals[interval], value)
}

func (t *IntegerValued) growLocked(interval int) {
	for len(t.intervals) <= interval {
		t.intervals = append(t.intervals, nil)
	}
}

func (t *IntegerValued) NumIntervals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intervals)
}

func (t *IntegerValued) NewInstance(clientID, threadID string) Tracker {
	return NewIntegerValued(clientID, threadID, t.displayName, t.collectionInterval, t.searchable)
}

// AverageValue returns the mean of every sample recorded across all
// intervals.
func (t *IntegerValued) AverageValue() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum int64
	var count int64
	for _, samples := range t.intervals {
		for _, v := range samples {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func (t *IntegerValued) GetSummaryValue() float64 {
	return t.AverageValue()
}

func (t *IntegerValued) Aggregate(peers ...Tracker) (Tracker, error) {
	n := maxIntervals(t, peers)
	merged := NewIntegerValued(t.clientID, t.threadID, t.displayName, t.collectionInterval, t.searchable)
	merged.intervals = make([][]int64, n)

	appendInto := func(src [][]int64) {
		for i, samples := range src {
			merged.intervals[i] = append(merged.intervals[i], samples...)
		}
	}

	t.mu.Lock()
	appendInto(t.intervals)
	t.mu.Unlock()

	for _, p := range peers {
		other, ok := p.(*IntegerValued)
		if !ok {
			return nil, errWrongVariant(t.displayName)
		}
		if !sameKey(t, other) {
			return nil, errKeyMismatch(t.displayName)
		}
		other.mu.Lock()
		appendInto(other.intervals)
		other.mu.Unlock()
	}
	return merged, nil
}
