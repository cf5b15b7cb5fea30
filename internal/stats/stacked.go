// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// Stacked tracks several named components that share the same interval
// buckets (e.g. per-phase latency of a multi-step transaction). It has
// no single summary value of its own — GetSummaryValue returns the sum
// of every component's average — callers interested in one component
// use GetAverageValue(name).
type Stacked struct {
	base
	components map[string][]int64
	counts     map[string][]int64
	order      []string
}

// NewStacked returns a zeroed stacked tracker.
func NewStacked(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) *Stacked {
	return &Stacked{
		base:       newBase(clientID, threadID, displayName, collectionInterval, searchable),
		components: make(map[string][]int64),
		counts:     make(map[string][]int64),
	}
}

// Record adds value to component's bucket for interval.
func (t *Stacked) Record(interval int, component string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(component, interval)
	t.components[component][interval] += value
	t.counts[component][interval]++
}

func (t *Stacked) growLocked(component string, interval int) {
	if _, ok := t.components[component]; !ok {
		t.components[component] = nil
		t.counts[component] = nil
		t.order = append(t.order, component)
	}
	for len(t.components[component]) <= interval {
		t.components[component] = append(t.components[component], 0)
		t.counts[component] = append(t.counts[component], 0)
	}
}

func (t *Stacked) NumIntervals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, series := range t.components {
		if len(series) > n {
			n = len(series)
		}
	}
	return n
}

func (t *Stacked) NewInstance(clientID, threadID string) Tracker {
	return NewStacked(clientID, threadID, t.displayName, t.collectionInterval, t.searchable)
}

// NewStackedFromComponents rebuilds a stacked tracker from its raw
// per-component, per-interval value and count series, as decoded off
// the wire. order fixes the component iteration order.
func NewStackedFromComponents(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool, order []string, components, counts map[string][]int64) *Stacked {
	t := NewStacked(clientID, threadID, displayName, collectionInterval, searchable)
	t.order = append([]string(nil), order...)
	for _, name := range order {
		t.components[name] = append([]int64(nil), components[name]...)
		t.counts[name] = append([]int64(nil), counts[name]...)
	}
	return t
}

// Components returns the raw per-component value and count series, and
// their iteration order, for wire encoding.
func (t *Stacked) Components() (order []string, values, counts map[string][]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	order = append([]string(nil), t.order...)
	values = make(map[string][]int64, len(t.components))
	counts = make(map[string][]int64, len(t.counts))
	for k, v := range t.components {
		values[k] = append([]int64(nil), v...)
	}
	for k, v := range t.counts {
		counts[k] = append([]int64(nil), v...)
	}
	return order, values, counts
}

// ComponentNames returns the components recorded, in first-seen order.
func (t *Stacked) ComponentNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// GetAverageValue returns the mean value recorded for the named
// component across every interval.
func (t *Stacked) GetAverageValue(component string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	values, ok := t.components[component]
	if !ok {
		return 0
	}
	counts := t.counts[component]
	var sum, count int64
	for i, v := range values {
		sum += v
		count += counts[i]
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func (t *Stacked) GetSummaryValue() float64 {
	t.mu.Lock()
	names := make([]string, len(t.order))
	copy(names, t.order)
	t.mu.Unlock()

	var sum float64
	for _, name := range names {
		sum += t.GetAverageValue(name)
	}
	return sum
}

func (t *Stacked) Aggregate(peers ...Tracker) (Tracker, error) {
	n := maxIntervals(t, peers)
	merged := NewStacked(t.clientID, t.threadID, t.displayName, t.collectionInterval, t.searchable)

	mergeInto := func(order []string, components, counts map[string][]int64) {
		for _, name := range order {
			if _, ok := merged.components[name]; !ok {
				merged.components[name] = make([]int64, n)
				merged.counts[name] = make([]int64, n)
				merged.order = append(merged.order, name)
			}
			for i, v := range components[name] {
				merged.components[name][i] += v
				merged.counts[name][i] += counts[name][i]
			}
		}
	}

	t.mu.Lock()
	mergeInto(t.order, t.components, t.counts)
	t.mu.Unlock()

	for _, p := range peers {
		other, ok := p.(*Stacked)
		if !ok {
			return nil, errWrongVariant(t.displayName)
		}
		if !sameKey(t, other) {
			return nil, errKeyMismatch(t.displayName)
		}
		other.mu.Lock()
		mergeInto(other.order, other.components, other.counts)
		other.mu.Unlock()
	}
	return merged, nil
}
