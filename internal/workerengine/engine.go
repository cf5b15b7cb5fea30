// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package workerengine runs a dispatched Job's workload locally on a
// loadgen-worker process: one internal/workload.Capability instance per
// thread, driven through its InitializeJob/Client/Thread -> RunJob ->
// FinalizeThread/Client/Job lifecycle (SPEC_FULL.md §4.1), with the
// per-thread trackers merged the same way internal/job merges
// per-worker trackers into a Job's aggregate. It implements
// internal/workerconn.Executor so a worker process can hand a received
// JobRequest frame straight to an Engine.
package workerengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/internal/workload"
	"github.com/jontk/loadgen/pkg/logging"
)

// running is the bookkeeping an in-flight job needs for Stop: the
// per-thread Capability instances (so StopJob can be broadcast to
// each) and the cancel func backing its duration/stop-time deadline.
type running struct {
	threads []workload.Capability
	cancel  context.CancelFunc
}

// Engine executes jobs dispatched to one worker process against a
// workload.Registry. A single Engine instance is shared by every
// JobRequest a loadgen-worker receives.
type Engine struct {
	registry *workload.Registry
	workerID string
	logger   logging.Logger

	mu      sync.Mutex
	running map[string]*running
}

// New returns an Engine that resolves workload classes from registry
// and reports WorkerID as the reporting worker in every job.Result.
func New(registry *workload.Registry, workerID string, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Engine{
		registry: registry,
		workerID: workerID,
		logger:   logger,
		running:  make(map[string]*running),
	}
}

// Execute runs req to completion (or until ctx / the job's own
// duration or stop time ends it) and reports the merged outcome. It
// blocks for the lifetime of the job; callers run it in its own
// goroutine per internal/workerconn's JobRequest handling.
func (e *Engine) Execute(ctx context.Context, req job.Request) job.Result {
	jobID := req.JobID.String()

	lead, err := e.registry.Get(req.WorkloadName)
	if err != nil {
		return job.Result{WorkerID: e.workerID, State: job.StateStoppedDueToError, Err: err}
	}

	info := workload.JobInfo{
		JobID:      jobID,
		Parameters: req.Parameters,
		NumClients: 1,
		Threads:    req.ThreadsPerClient,
	}
	if err := lead.InitializeJob(ctx, info); err != nil {
		return job.Result{WorkerID: e.workerID, State: job.StateStoppedDueToError, Err: err}
	}
	if err := lead.InitializeClient(ctx, e.workerID); err != nil {
		return job.Result{WorkerID: e.workerID, State: job.StateStoppedDueToError, Err: err}
	}

	threads := make([]workload.Capability, req.ThreadsPerClient)
	threads[0] = lead
	for i := 1; i < req.ThreadsPerClient; i++ {
		th, err := e.registry.Get(req.WorkloadName)
		if err != nil {
			return job.Result{WorkerID: e.workerID, State: job.StateStoppedDueToError, Err: err}
		}
		threads[i] = th
	}

	runCtx := ctx
	cancel := func() {}
	if req.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Duration)
	} else if req.StopTime != nil {
		runCtx, cancel = context.WithDeadline(ctx, *req.StopTime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.track(jobID, threads, cancel)
	defer e.untrack(jobID)

	// When the duration or stop-time deadline passes (or ctx ends),
	// every thread is asked to stop, since RunJob polls ShouldStop.
	go func() {
		<-runCtx.Done()
		for _, th := range threads {
			th.StopJob()
		}
	}()

	errs := make([]error, len(threads))
	var wg sync.WaitGroup
	for i, th := range threads {
		threadID := fmt.Sprintf("t%d", i)
		if err := th.InitializeThread(runCtx, e.workerID, threadID); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, th workload.Capability) {
			defer wg.Done()
			errs[i] = th.RunJob(runCtx)
		}(i, th)
	}
	wg.Wait()

	merged := make(map[string]stats.Tracker)
	var firstErr error
	for i, th := range threads {
		if ferr := th.FinalizeThread(ctx); ferr != nil && firstErr == nil {
			firstErr = ferr
		}
		if errs[i] != nil && firstErr == nil {
			firstErr = errs[i]
		}
		for _, tr := range th.StatTrackers() {
			key := tr.DisplayName()
			existing, ok := merged[key]
			if !ok {
				merged[key] = tr
				continue
			}
			combined, aggErr := existing.Aggregate(tr)
			if aggErr != nil {
				logging.LogError(e.logger, aggErr, "aggregate_thread_tracker", "job_id", jobID, "tracker", key)
				continue
			}
			merged[key] = combined
		}
	}
	if err := lead.FinalizeClient(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := lead.FinalizeJob(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	state := job.StateCompletedSuccessfully
	if firstErr != nil {
		state = job.StateCompletedWithErrors
	}
	trackers := make([]stats.Tracker, 0, len(merged))
	for _, tr := range merged {
		trackers = append(trackers, tr)
	}
	return job.Result{WorkerID: e.workerID, State: state, Trackers: trackers, Err: firstErr}
}

// Stop broadcasts a stop (or, if cancel, a harder cancel) to every
// thread currently running jobID. A jobID this Engine has no record of
// — already finished, or never started — is a no-op.
func (e *Engine) Stop(jobID string, cancel bool) {
	e.mu.Lock()
	r, ok := e.running[jobID]
	e.mu.Unlock()
	if !ok {
		return
	}
	for _, th := range r.threads {
		th.StopJob()
	}
	if cancel {
		r.cancel()
	}
}

func (e *Engine) track(jobID string, threads []workload.Capability, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[jobID] = &running{threads: threads, cancel: cancel}
}

func (e *Engine) untrack(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, jobID)
}
