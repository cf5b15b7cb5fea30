// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"context"
	"sync"
	"time"

	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// Dispatcher is the capability a worker connection exposes to a Job: it
// accepts a run request and a control signal, and reports its own
// identity. internal/workerconn supplies the concrete implementation;
// internal/job depends only on this interface to avoid an import cycle.
type Dispatcher interface {
	WorkerID() string
	Dispatch(ctx context.Context, req Request) error
	Control(ctx context.Context, signal ControlSignal) error
}

// Request is what a Job sends a worker to start running a workload.
type Request struct {
	JobID            jobid.ID
	WorkloadName     string
	ThreadsPerClient int
	Parameters       map[string]any
	Duration         time.Duration
	StopTime         *time.Time
}

// ControlSignal is an out-of-band instruction sent to a worker already
// running a job.
type ControlSignal string

const (
	ControlStop   ControlSignal = "STOP"
	ControlCancel ControlSignal = "CANCEL"
)

// Result is what a worker reports back when it finishes its share of a
// job, successfully or not.
type Result struct {
	WorkerID string
	State    State
	Trackers []stats.Tracker
	Err      error
}

// Job tracks one load-generation run: the set of workers it dispatched
// to, the workers still outstanding, the trackers they have reported,
// and its own terminal state once every worker has reported in.
type Job struct {
	mu sync.Mutex

	id               jobid.ID
	workloadName     string
	threadsPerClient int
	numClients       int

	state     State
	active    map[string]struct{}
	trackers  map[string]stats.Tracker // keyed by DisplayName+CollectionInterval
	startedAt time.Time
	stoppedAt time.Time

	cancelRequested bool
	doneCh          chan struct{}
	doneClosed      bool

	logger logging.Logger
}

// New creates a Job in StateNotYetStarted.
func New(id jobid.ID, workloadName string, numClients, threadsPerClient int, logger logging.Logger) *Job {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Job{
		id:               id,
		workloadName:     workloadName,
		numClients:       numClients,
		threadsPerClient: threadsPerClient,
		state:            StateNotYetStarted,
		active:           make(map[string]struct{}),
		trackers:         make(map[string]stats.Tracker),
		doneCh:           make(chan struct{}),
		logger:           logger,
	}
}

func (j *Job) ID() jobid.ID { return j.id }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done returns a channel closed once the Job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doneCh
}

// Start dispatches the job to every worker. If fewer workers accept the
// dispatch than the job requires, already-dispatched workers are sent a
// cancel control and the job never enters StateRunning.
//
// Start protocol:
//  1. Reject if the job was already started, disabled, or cancelled.
//  2. Dispatch to each worker in turn, tracking acceptances.
//  3. If every worker accepted, move to StateRunning.
//  4. If any worker refused or failed to dial, send CANCEL to the
//     workers that did accept and report the failure without starting.
func (j *Job) Start(ctx context.Context, workers []Dispatcher) error {
	j.mu.Lock()
	if j.state != StateNotYetStarted {
		state := j.state
		j.mu.Unlock()
		return errors.NewUnableToRunError(errors.ErrorCodeInitializeJobFailed,
			"job is not in a startable state", string(state), nil)
	}
	if len(workers) != j.numClients {
		j.mu.Unlock()
		return errors.NewUnableToRunError(errors.ErrorCodeInsufficientWorkers,
			"worker count does not match requested client count", "", nil)
	}
	j.mu.Unlock()

	req := Request{
		JobID:            j.id,
		WorkloadName:     j.workloadName,
		ThreadsPerClient: j.threadsPerClient,
	}

	accepted := make([]Dispatcher, 0, len(workers))
	var dispatchErr error
	for _, w := range workers {
		if err := w.Dispatch(ctx, req); err != nil {
			dispatchErr = errors.NewWorkerError(errors.ErrorCodeWorkerDialFailed,
				"worker refused dispatch", w.WorkerID(), err)
			break
		}
		accepted = append(accepted, w)
	}

	if dispatchErr != nil {
		for _, w := range accepted {
			_ = w.Control(ctx, ControlCancel)
		}
		j.mu.Lock()
		j.state = StateStoppedDueToError
		j.closeDoneLocked()
		j.mu.Unlock()
		return dispatchErr
	}

	j.mu.Lock()
	j.state = StateRunning
	j.startedAt = time.Now()
	for _, w := range accepted {
		j.active[w.WorkerID()] = struct{}{}
	}
	j.mu.Unlock()

	logging.LogJobEvent(j.logger, j.id.String(), string(StateRunning)).Info("job started",
		"workload", j.workloadName, "num_clients", j.numClients)
	return nil
}

// HandleWorkerCompleted applies the worker-completion protocol: the
// reporting worker is removed from the active set, its trackers are
// merged into the job's aggregate, and the job's terminal state is
// raised (never lowered) to reflect the worker's outcome. The last
// worker to report triggers finalization.
func (j *Job) HandleWorkerCompleted(result Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.active[result.WorkerID]; !ok {
		return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError,
			"worker completion reported for a worker not in the active set", result.WorkerID, nil)
	}
	delete(j.active, result.WorkerID)

	for _, tr := range result.Trackers {
		key := tr.DisplayName() + "@" + tr.CollectionInterval().String()
		existing, ok := j.trackers[key]
		if !ok {
			j.trackers[key] = tr
			continue
		}
		merged, err := existing.Aggregate(tr)
		if err != nil {
			logging.LogError(j.logger, err, "aggregate_tracker", "tracker", key)
			continue
		}
		j.trackers[key] = merged
	}

	candidate := result.State
	if candidate == "" {
		if result.Err != nil {
			candidate = StateCompletedWithErrors
		} else {
			candidate = StateCompletedSuccessfully
		}
	}
	if moreSevere(j.state, candidate) {
		j.state = candidate
	}

	if len(j.active) == 0 {
		j.finalizeLocked()
	}
	return nil
}

// finalizeLocked runs once every dispatched worker has reported in. The
// caller must hold j.mu.
func (j *Job) finalizeLocked() {
	if j.state == StateRunning {
		j.state = StateCompletedSuccessfully
	}
	j.stoppedAt = time.Now()
	j.closeDoneLocked()
	logging.LogJobEvent(j.logger, j.id.String(), string(j.state)).Info("job finished")
}

func (j *Job) closeDoneLocked() {
	if !j.doneClosed {
		close(j.doneCh)
		j.doneClosed = true
	}
}

// StopProcessing broadcasts a stop control to every active worker and
// records why. It is idempotent: calling it on an already-stopped or
// already-stopping job is a no-op.
func (j *Job) StopProcessing(ctx context.Context, workers map[string]Dispatcher, reason State) error {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return nil
	}
	targets := make([]Dispatcher, 0, len(j.active))
	for id := range j.active {
		if w, ok := workers[id]; ok {
			targets = append(targets, w)
		}
	}
	j.mu.Unlock()

	var firstErr error
	for _, w := range targets {
		signal := ControlStop
		if reason == StateCancelled {
			signal = ControlCancel
		}
		if err := w.Control(ctx, signal); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	j.mu.Lock()
	if moreSevere(j.state, reason) {
		j.state = reason
	}
	if reason == StateCancelled {
		j.cancelRequested = true
	}
	j.mu.Unlock()
	return firstErr
}

// StopAndWait calls StopProcessing and blocks until every worker has
// reported completion or ctx is cancelled.
func (j *Job) StopAndWait(ctx context.Context, workers map[string]Dispatcher, reason State) error {
	if err := j.StopProcessing(ctx, workers, reason); err != nil {
		return err
	}
	select {
	case <-j.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelRequested reports whether a cancel has been requested, for an
// optimizing job's iteration loop to observe between iterations.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// Trackers returns a snapshot of the job's aggregated stat trackers,
// keyed by DisplayName+"@"+CollectionInterval.
func (j *Job) Trackers() map[string]stats.Tracker {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]stats.Tracker, len(j.trackers))
	for k, v := range j.trackers {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only view of a Job for persistence and the admin API.
type Snapshot struct {
	ID               string
	WorkloadName     string
	State            State
	NumClients       int
	ThreadsPerClient int
	StartedAt        time.Time
	StoppedAt        time.Time
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:               j.id.String(),
		WorkloadName:     j.workloadName,
		State:            j.state,
		NumClients:       j.numClients,
		ThreadsPerClient: j.threadsPerClient,
		StartedAt:        j.startedAt,
		StoppedAt:        j.stoppedAt,
	}
}
