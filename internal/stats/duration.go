// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// Duration tracks timed operations (request latency, connection setup
// time) bucketed per collection interval. Each interval accumulates a
// sum of durations and a sample count; GetSummaryValue reports the
// overall average duration across every sample recorded.
type Duration struct {
	base
	intervalDurations []time.Duration
	intervalCounts    []int64
}

// NewDuration returns a zeroed time/duration tracker.
func NewDuration(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) *Duration {
	return &Duration{base: newBase(clientID, threadID, displayName, collectionInterval, searchable)}
}

// NewDurationFromIntervals rebuilds a duration tracker from its raw
// per-interval sums and sample counts, as decoded off the wire.
func NewDurationFromIntervals(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool, durations []time.Duration, counts []int64) *Duration {
	t := NewDuration(clientID, threadID, displayName, collectionInterval, searchable)
	t.intervalDurations = append([]time.Duration(nil), durations...)
	t.intervalCounts = append([]int64(nil), counts...)
	return t
}

// Intervals returns copies of the per-interval sums and sample counts,
// for wire encoding.
func (t *Duration) Intervals() ([]time.Duration, []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.intervalDurations...), append([]int64(nil), t.intervalCounts...)
}

// Record adds one sample of the given duration to interval.
func (t *Duration) Record(interval int, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(interval)
	t.intervalDurations[interval] += d
	t.intervalCounts[interval]++
}

func (t *Duration) growLocked(interval int) {
	for len(t.intervalDurations) <= interval {
		t.intervalDurations = append(t.intervalDurations, 0)
		t.intervalCounts = append(t.intervalCounts, 0)
	}
}

func (t *Duration) NumIntervals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intervalDurations)
}

func (t *Duration) NewInstance(clientID, threadID string) Tracker {
	return NewDuration(clientID, threadID, t.displayName, t.collectionInterval, t.searchable)
}

// IntervalAverages returns the mean sample duration (in seconds) for
// each interval, in order. An interval with no samples reports zero.
func (t *Duration) IntervalAverages() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.intervalDurations))
	for i := range t.intervalDurations {
		if t.intervalCounts[i] == 0 {
			continue
		}
		out[i] = t.intervalDurations[i].Seconds() / float64(t.intervalCounts[i])
	}
	return out
}

// AverageDuration returns the mean of every recorded sample.
func (t *Duration) AverageDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sumNanos int64
	var count int64
	for i := range t.intervalDurations {
		sumNanos += t.intervalDurations[i].Nanoseconds()
		count += t.intervalCounts[i]
	}
	if count == 0 {
		return 0
	}
	return time.Duration(sumNanos / count)
}

func (t *Duration) GetSummaryValue() float64 {
	return t.AverageDuration().Seconds() * 1000 // milliseconds
}

func (t *Duration) Aggregate(peers ...Tracker) (Tracker, error) {
	n := maxIntervals(t, peers)
	merged := NewDuration(t.clientID, t.threadID, t.displayName, t.collectionInterval, t.searchable)
	merged.intervalDurations = make([]time.Duration, n)
	merged.intervalCounts = make([]int64, n)

	t.mu.Lock()
	copy(merged.intervalDurations, t.intervalDurations)
	copy(merged.intervalCounts, t.intervalCounts)
	t.mu.Unlock()

	for _, p := range peers {
		other, ok := p.(*Duration)
		if !ok {
			return nil, errWrongVariant(t.displayName)
		}
		if !sameKey(t, other) {
			return nil, errKeyMismatch(t.displayName)
		}
		other.mu.Lock()
		for i := range other.intervalDurations {
			merged.intervalDurations[i] += other.intervalDurations[i]
			merged.intervalCounts[i] += other.intervalCounts[i]
		}
		other.mu.Unlock()
	}
	return merged, nil
}
