// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package stats implements the five stat tracker variants a workload can
// report: incremental counters, time/duration trackers, categorical
// trackers, integer-valued trackers, and stacked (multi-component)
// trackers. A tracker is a named time-series keyed by (workload, worker
// ID, thread ID, display name, collection interval); aggregation across
// peer trackers from different threads/clients is associative and
// commutative within that key.
package stats

import (
	"sync"
	"time"

	loadgenerrors "github.com/jontk/loadgen/pkg/errors"
)

// Tracker is the capability every stat tracker variant implements.
type Tracker interface {
	ClientID() string
	ThreadID() string
	DisplayName() string
	CollectionInterval() time.Duration
	NumIntervals() int
	IsSearchable() bool

	// NewInstance returns a zeroed tracker of the same variant, display
	// name, and collection interval, scoped to a different client/thread.
	// Used by a worker to spin up one tracker per thread from a stub.
	NewInstance(clientID, threadID string) Tracker

	// Aggregate merges this tracker with peers of identical
	// (DisplayName, CollectionInterval) and returns the combined tracker.
	// Peers of a different variant or key are rejected.
	Aggregate(peers ...Tracker) (Tracker, error)

	// GetSummaryValue returns the single representative value callers
	// and algorithms read (a rate, an average, or similar).
	GetSummaryValue() float64

	Start()
	Stop()
}

// base holds the fields and lifecycle shared by every tracker variant.
// It is not itself a Tracker; each variant embeds it and adds the
// variant-specific interval storage, Aggregate, and summary logic.
type base struct {
	mu                 sync.Mutex
	clientID           string
	threadID           string
	displayName        string
	collectionInterval time.Duration
	searchable         bool
	startedAt          time.Time
	stoppedAt          time.Time
	running            bool
}

func newBase(clientID, threadID, displayName string, collectionInterval time.Duration, searchable bool) base {
	return base{
		clientID:           clientID,
		threadID:           threadID,
		displayName:        displayName,
		collectionInterval: collectionInterval,
		searchable:         searchable,
	}
}

func (b *base) ClientID() string                     { return b.clientID }
func (b *base) ThreadID() string                     { return b.threadID }
func (b *base) DisplayName() string                  { return b.displayName }
func (b *base) CollectionInterval() time.Duration    { return b.collectionInterval }
func (b *base) IsSearchable() bool                   { return b.searchable }

func (b *base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = time.Now()
	b.running = true
}

func (b *base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stoppedAt = time.Now()
	b.running = false
}

// sameKey reports whether a peer tracker shares this tracker's
// aggregation key: identical display name and collection interval.
func sameKey(a, b Tracker) bool {
	return a.DisplayName() == b.DisplayName() && a.CollectionInterval() == b.CollectionInterval()
}

// maxIntervals returns the largest NumIntervals across a tracker and its
// peers — aggregation pads shorter series with zero, never truncates.
func maxIntervals(self Tracker, peers []Tracker) int {
	n := self.NumIntervals()
	for _, p := range peers {
		if p.NumIntervals() > n {
			n = p.NumIntervals()
		}
	}
	return n
}

func errWrongVariant(displayName string) error {
	return loadgenerrors.NewLoadgenError(loadgenerrors.ErrorCodeNonSearchableStat,
		"cannot aggregate peer tracker \""+displayName+"\": variant mismatch")
}

func errKeyMismatch(displayName string) error {
	return loadgenerrors.NewLoadgenError(loadgenerrors.ErrorCodeNonSearchableStat,
		"cannot aggregate peer tracker \""+displayName+"\": display name or collection interval mismatch")
}
