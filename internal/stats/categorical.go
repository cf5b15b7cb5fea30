// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// Categorical tracks a count per named category (e.g. HTTP response
// classes, error kinds) bucketed per collection interval.
// GetSummaryValue reports the total count across every category and
// interval; per-category totals are available via CategoryTotal.
type Categorical struct {
	base
	intervals []map[string]int64
}

// NewCategorical returns a zeroed categorical tracker.
func NewCategorical(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) *Categorical {
	return &Categorical{base: newBase(clientID, threadID, displayName, collectionInterval, searchable)}
}

// NewCategoricalFromIntervals rebuilds a categorical tracker from its
// raw per-interval category counts, as decoded off the wire.
func NewCategoricalFromIntervals(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool, intervals []map[string]int64) *Categorical {
	t := NewCategorical(clientID, threadID, displayName, collectionInterval, searchable)
	t.intervals = make([]map[string]int64, len(intervals))
	for i, m := range intervals {
		cp := make(map[string]int64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		t.intervals[i] = cp
	}
	return t
}

// Intervals returns a copy of the per-interval category counts, for
// wire encoding.
func (t *Categorical) Intervals() []map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]int64, len(t.intervals))
	for i, m := range t.intervals {
		cp := make(map[string]int64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Record increments category's count within interval.
func (t *Categorical) Record(interval int, category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(interval)
	t.intervals[interval][category]++
}

func (t *Categorical) growLocked(interval int) {
	for len(t.intervals) <= interval {
		t.intervals = append(t.intervals, make(map[string]int64))
	}
}

func (t *Categorical) NumIntervals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intervals)
}

func (t *Categorical) NewInstance(clientID, threadID string) Tracker {
	return NewCategorical(clientID, threadID, t.displayName, t.collectionInterval, t.searchable)
}

// CategoryTotal returns the total count recorded for category across
// every interval.
func (t *Categorical) CategoryTotal(category string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, m := range t.intervals {
		total += m[category]
	}
	return total
}

func (t *Categorical) GetSummaryValue() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, m := range t.intervals {
		for _, c := range m {
			total += c
		}
	}
	return float64(total)
}

func (t *Categorical) Aggregate(peers ...Tracker) (Tracker, error) {
	n := maxIntervals(t, peers)
	merged := NewCategorical(t.clientID, t.threadID, t.displayName, t.collectionInterval, t.searchable)
	merged.intervals = make([]map[string]int64, n)
	for i := range merged.intervals {
		merged.intervals[i] = make(map[string]int64)
	}

	mergeInto := func(src []map[string]int64) {
		for i, m := range src {
			for k, v := range m {
				merged.intervals[i][k] += v
			}
		}
	}

	t.mu.Lock()
	mergeInto(t.intervals)
	t.mu.Unlock()

	for _, p := range peers {
		other, ok := p.(*Categorical)
		if !ok {
			return nil, errWrongVariant(t.displayName)
		}
		if !sameKey(t, other) {
			return nil, errKeyMismatch(t.displayName)
		}
		other.mu.Lock()
		mergeInto(other.intervals)
		other.mu.Unlock()
	}
	return merged, nil
}
