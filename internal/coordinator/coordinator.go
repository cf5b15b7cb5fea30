// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package coordinator implements the Client Coordinator from
// SPEC_FULL.md §4.4: the shared, single-locked pool of worker
// connections a Job draws compute and monitor workers from.
package coordinator

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// handle is one registered worker connection and its pool bookkeeping.
type handle struct {
	dispatcher job.Dispatcher
	isMonitor  bool
	available  bool
}

// Coordinator owns the single lock guarding worker availability. The
// Scheduler and the Coordinator itself are the only mutators, per
// SPEC_FULL.md §5's shared-resource policy.
type Coordinator struct {
	mu      sync.Mutex
	workers map[string]*handle
	limiter *rate.Limiter
	logger  logging.Logger
}

// New returns a Coordinator whose dispatch fan-out is rate limited to
// dispatchesPerSecond, bursting up to burst — this bounds how fast a
// single job admission can open worker connections in one go.
func New(dispatchesPerSecond float64, burst int, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if dispatchesPerSecond <= 0 {
		dispatchesPerSecond = 50
	}
	if burst <= 0 {
		burst = 10
	}
	return &Coordinator{
		workers: make(map[string]*handle),
		limiter: rate.NewLimiter(rate.Limit(dispatchesPerSecond), burst),
		logger:  logger,
	}
}

// RegisterWorker adds a worker connection to the pool, available
// immediately.
func (c *Coordinator) RegisterWorker(d job.Dispatcher, isMonitor bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers[d.WorkerID()] = &handle{dispatcher: d, isMonitor: isMonitor, available: true}
	c.logger.Info("worker registered", "worker_id", d.WorkerID(), "monitor", isMonitor)
}

// UnregisterWorker removes a worker connection, e.g. on disconnect.
func (c *Coordinator) UnregisterWorker(workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.workers, workerID)
	c.logger.Info("worker unregistered", "worker_id", workerID)
}

// SetAvailableForProcessing marks a worker available or unavailable
// for new dispatch without removing it from the pool — used when a
// job completes (worker becomes available again) or when a worker
// reports itself overloaded.
func (c *Coordinator) SetAvailableForProcessing(workerID string, available bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.workers[workerID]
	if !ok {
		return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError,
			"unknown worker", workerID, nil)
	}
	h.available = available
	return nil
}

// GetClientConnections reserves n available, non-monitor workers,
// marking them unavailable for the caller's use. It fails outright if
// fewer than n are available — compute workers are not optional.
func (c *Coordinator) GetClientConnections(ctx context.Context, n int) ([]job.Dispatcher, error) {
	return c.reserve(ctx, n, false, true)
}

// GetMonitorClientConnections reserves up to n available monitor
// workers. If monitorIfAvailable is true, a shortfall is not an error —
// the caller receives however many were available, even zero.
func (c *Coordinator) GetMonitorClientConnections(ctx context.Context, n int, monitorIfAvailable bool) ([]job.Dispatcher, error) {
	return c.reserve(ctx, n, true, !monitorIfAvailable)
}

func (c *Coordinator) reserve(ctx context.Context, n int, monitor, strict bool) ([]job.Dispatcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	selected := make([]*handle, 0, n)
	for _, h := range c.workers {
		if len(selected) == n {
			break
		}
		if h.isMonitor != monitor || !h.available {
			continue
		}
		selected = append(selected, h)
	}

	if strict && len(selected) < n {
		return nil, errors.NewUnableToRunError(errors.ErrorCodeInsufficientWorkers,
			"not enough available workers to satisfy the request", "", nil)
	}

	out := make([]job.Dispatcher, 0, len(selected))
	for _, h := range selected {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		h.available = false
		out = append(out, h.dispatcher)
	}
	return out, nil
}

// Release marks every worker in ids available again, typically called
// once a Job finishes with them.
func (c *Coordinator) Release(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if h, ok := c.workers[id]; ok {
			h.available = true
		}
	}
}

// AvailableCount returns how many workers of the given monitor/compute
// class are currently available, for admission-loop diagnostics.
func (c *Coordinator) AvailableCount(monitor bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.workers {
		if h.isMonitor == monitor && h.available {
			n++
		}
	}
	return n
}
