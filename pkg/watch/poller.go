// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package watch implements internal/adminapi's pkg/streaming.Watcher by
// polling a single Job's state at an interval and diffing it against
// the last observed value, the same poll-and-diff shape the teacher's
// JobPoller used over a list of SLURM jobs, narrowed to one resource.
package watch

import (
	"context"
	"time"

	"github.com/jontk/loadgen/pkg/streaming"
)

// DefaultPollInterval is how often a JobPoller re-checks a Job's state.
const DefaultPollInterval = time.Second

// Lookup returns the current state of one Job or Optimizing Job.
// isTerminal tells the poller to close the event channel after
// emitting this state.
type Lookup func(ctx context.Context, id string) (state string, isTerminal bool, err error)

// JobPoller implements streaming.Watcher by polling a Lookup function.
type JobPoller struct {
	lookup       Lookup
	pollInterval time.Duration
	bufferSize   int
}

// NewJobPoller returns a JobPoller backed by lookup.
func NewJobPoller(lookup Lookup) *JobPoller {
	return &JobPoller{
		lookup:       lookup,
		pollInterval: DefaultPollInterval,
		bufferSize:   16,
	}
}

// WithPollInterval overrides DefaultPollInterval.
func (p *JobPoller) WithPollInterval(interval time.Duration) *JobPoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize overrides the event channel's buffer size.
func (p *JobPoller) WithBufferSize(size int) *JobPoller {
	p.bufferSize = size
	return p
}

// Watch satisfies streaming.Watcher: it polls id's state every
// pollInterval, emitting a "state_change" Event whenever it differs
// from the previous poll, and closing the channel once isTerminal is
// reported or ctx is cancelled.
func (p *JobPoller) Watch(ctx context.Context, id string) (<-chan streaming.Event, error) {
	events := make(chan streaming.Event, p.bufferSize)
	go p.pollLoop(ctx, id, events)
	return events, nil
}

func (p *JobPoller) pollLoop(ctx context.Context, id string, events chan<- streaming.Event) {
	defer close(events)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var lastState string
	first := true

	poll := func() bool {
		state, terminal, err := p.lookup(ctx, id)
		if err != nil {
			events <- streaming.Event{Type: "error", Data: map[string]string{"error": err.Error()}}
			return true
		}
		if first || state != lastState {
			first = false
			lastState = state
			events <- streaming.Event{
				Type: "state_change",
				Data: map[string]string{"id": id, "state": state},
			}
		}
		return terminal
	}

	if poll() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if poll() {
				return
			}
		}
	}
}
