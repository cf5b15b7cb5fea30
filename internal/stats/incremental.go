// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// Incremental tracks a monotone counter (operations completed, bytes
// sent) bucketed per collection interval. Its summary value is the
// per-second rate across every recorded interval.
type Incremental struct {
	base
	counts []int64
}

// NewIncremental returns a zeroed incremental tracker.
func NewIncremental(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) *Incremental {
	return &Incremental{base: newBase(clientID, threadID, displayName, collectionInterval, searchable)}
}

// NewIncrementalFromCounts rebuilds an incremental tracker from its raw
// per-interval counts, as decoded off the wire from a worker's
// completion report.
func NewIncrementalFromCounts(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool, counts []int64) *Incremental {
	t := NewIncremental(clientID, threadID, displayName, collectionInterval, searchable)
	t.counts = append([]int64(nil), counts...)
	return t
}

// Counts returns a copy of the per-interval counts, for wire encoding.
func (t *Incremental) Counts() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.counts...)
}

// Increment adds delta to the current interval's count, extending the
// series with a fresh zero bucket if interval is beyond the last one seen.
func (t *Incremental) Increment(interval int, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(interval)
	t.counts[interval] += delta
}

func (t *Incremental) growLocked(interval int) {
	for len(t.counts) <= interval {
		t.counts = append(t.counts, 0)
	}
}

func (t *Incremental) NumIntervals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

func (t *Incremental) NewInstance(clientID, threadID string) Tracker {
	return NewIncremental(clientID, threadID, t.displayName, t.collectionInterval, t.searchable)
}

// GetSummaryValue returns the total count divided by the total elapsed
// collection time, i.e. the average per-second rate.
func (t *Incremental) GetSummaryValue() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.counts) == 0 || t.collectionInterval <= 0 {
		return 0
	}
	var total int64
	for _, c := range t.counts {
		total += c
	}
	elapsedSeconds := float64(len(t.counts)) * t.collectionInterval.Seconds()
	if elapsedSeconds == 0 {
		return 0
	}
	return float64(total) / elapsedSeconds
}

func (t *Incremental) Aggregate(peers ...Tracker) (Tracker, error) {
	n := maxIntervals(t, peers)
	merged := NewIncremental(t.clientID, t.threadID, t.displayName, t.collectionInterval, t.searchable)
	merged.counts = make([]int64, n)
	t.mu.Lock()
	copy(merged.counts, t.counts)
	t.mu.Unlock()

	for _, p := range peers {
		other, ok := p.(*Incremental)
		if !ok {
			return nil, errWrongVariant(t.displayName)
		}
		if !sameKey(t, other) {
			return nil, errKeyMismatch(t.displayName)
		}
		other.mu.Lock()
		for i, c := range other.counts {
			merged.counts[i] += c
		}
		other.mu.Unlock()
	}
	return merged, nil
}
