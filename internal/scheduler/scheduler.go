// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the Scheduler from SPEC_FULL.md §4.5: the
// admission loop, dependency gating, completion routing back to an
// Optimizing Job controller, and cancel/de-cache of Optimizing Jobs.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// defaultAdmissionSpec ticks the admission loop once a second, the
// cadence SPEC_FULL.md §4.5 names as the default.
const defaultAdmissionSpec = "@every 1s"

// WorkerPool is the subset of internal/coordinator.Coordinator the
// admission loop needs to turn a Job descriptor into dispatched
// workers.
type WorkerPool interface {
	GetClientConnections(ctx context.Context, n int) ([]job.Dispatcher, error)
	Release(ids []string)
}

// Persister is the subset of internal/store.Store the Scheduler uses to
// record a Job's final state. Optional — a nil Persister simply skips
// persistence, which is useful for tests and for the in-memory-only
// deployment mode.
type Persister interface {
	SaveJobState(id jobid.ID, state job.State) error
}

// Controller is the Optimizing Job capability from SPEC_FULL.md §4.6.
// internal/optimizing supplies the concrete implementation; this
// package depends only on the interface, the same pattern
// internal/job uses for Dispatcher, to avoid an import cycle between
// the two packages (the controller itself calls back into Scheduler.Submit).
type Controller interface {
	IterationComplete(ctx context.Context, childID jobid.ID, child *job.Job)
}

// Descriptor is everything the Scheduler needs to admit a Job: the
// workload it runs, the clients it requires, when it becomes eligible,
// and what it depends on.
type Descriptor struct {
	ID               jobid.ID
	WorkloadName     string
	NumClients       int
	ThreadsPerClient int
	StartTime        time.Time
	Dependencies     []jobid.ID
	OptimizingJobID  jobid.ID // empty if this Job is not an optimizing-job iteration
}

type admittedJob struct {
	job     *job.Job
	workers []job.Dispatcher
	desc    Descriptor
}

// Scheduler owns the pending queue and the in-flight Job/Optimizing Job
// caches described in SPEC_FULL.md §4.5. cacheMu is the single cache
// lock; it must never be held while calling into a Job's own mutex or
// a Controller (the lock-ordering rule from §5).
type Scheduler struct {
	cacheMu sync.Mutex
	pending []Descriptor
	active  map[jobid.ID]*admittedJob
	done    map[jobid.ID]job.State // retained for downstream dependency checks
	controllers map[jobid.ID]Controller
	workerToJob map[string]jobid.ID // reverse index for HandleWorkerResult

	pool      WorkerPool
	persister Persister
	logger    logging.Logger

	cron *cron.Cron
}

// New returns a Scheduler whose admission loop ticks on admissionSpec
// (a robfig/cron schedule expression); an empty string uses the
// SPEC_FULL.md default of once per second.
func New(pool WorkerPool, persister Persister, admissionSpec string, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if admissionSpec == "" {
		admissionSpec = defaultAdmissionSpec
	}
	s := &Scheduler{
		active:      make(map[jobid.ID]*admittedJob),
		done:        make(map[jobid.ID]job.State),
		controllers: make(map[jobid.ID]Controller),
		workerToJob: make(map[string]jobid.ID),
		pool:        pool,
		persister:   persister,
		logger:      logger,
		cron:        cron.New(),
	}
	if _, err := s.cron.AddFunc(admissionSpec, s.runAdmissionLoop); err != nil {
		logger.Error("scheduler: invalid admission cron spec, falling back to default", "spec", admissionSpec, "error", err.Error())
		s.cron.AddFunc(defaultAdmissionSpec, s.runAdmissionLoop)
	}
	return s
}

// Start begins the cron-driven admission loop.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the admission loop and waits for any in-progress tick to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// Submit enqueues a Job descriptor as pending, in start-time order. It
// is used for freshly-submitted top-level Jobs and by an Optimizing
// Job controller scheduling its next iteration child.
func (s *Scheduler) Submit(desc Descriptor) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.pending = append(s.pending, desc)
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i].StartTime.Before(s.pending[j].StartTime) })
}

// RegisterOptimizingController associates an Optimizing Job ID with the
// controller that should receive jobIterationComplete calls for its
// children.
func (s *Scheduler) RegisterOptimizingController(optimizingJobID jobid.ID, c Controller) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.controllers[optimizingJobID] = c
}

// runAdmissionLoop is the cron tick body: for each pending Job whose
// start time has arrived and whose dependencies have all terminated,
// attempt to start it.
func (s *Scheduler) runAdmissionLoop() {
	now := time.Now()

	s.cacheMu.Lock()
	var ready []Descriptor
	remaining := s.pending[:0:0]
	for _, desc := range s.pending {
		if desc.StartTime.After(now) || !s.dependenciesTerminatedLocked(desc.Dependencies) {
			remaining = append(remaining, desc)
			continue
		}
		ready = append(ready, desc)
	}
	s.pending = remaining
	s.cacheMu.Unlock()

	for _, desc := range ready {
		s.admit(desc)
	}
}

// dependenciesTerminated reports whether every dependency has reached
// any terminal state. Dependencies are completion-based, not
// success-based: a dependency that ended in error still unblocks its
// downstream Job. Caller must hold cacheMu.
func (s *Scheduler) dependenciesTerminatedLocked(deps []jobid.ID) bool {
	for _, dep := range deps {
		if _, ok := s.done[dep]; !ok {
			return false
		}
	}
	return true
}

func (s *Scheduler) admit(desc Descriptor) {
	ctx := context.Background()
	j := job.New(desc.ID, desc.WorkloadName, desc.NumClients, desc.ThreadsPerClient, s.logger)

	workers, err := s.pool.GetClientConnections(ctx, desc.NumClients)
	if err != nil {
		s.markUnableToRun(ctx, desc, err)
		return
	}
	if err := j.Start(ctx, workers); err != nil {
		s.pool.Release(dispatcherIDs(workers))
		s.markUnableToRun(ctx, desc, err)
		return
	}

	s.cacheMu.Lock()
	s.active[desc.ID] = &admittedJob{job: j, workers: workers, desc: desc}
	for _, w := range workers {
		s.workerToJob[w.WorkerID()] = desc.ID
	}
	s.cacheMu.Unlock()

	logging.LogJobEvent(s.logger, desc.ID.String(), "RUNNING").Info("job admitted")
	go s.awaitCompletion(desc.ID)
}

func (s *Scheduler) markUnableToRun(ctx context.Context, desc Descriptor, cause error) {
	logging.LogError(s.logger, cause, "job_admission", "job_id", desc.ID.String())
	s.persist(desc.ID, job.StateStoppedDueToError)
	s.cacheMu.Lock()
	s.done[desc.ID] = job.StateStoppedDueToError
	controller, hasController := s.controllers[desc.OptimizingJobID]
	s.cacheMu.Unlock()
	if desc.OptimizingJobID != "" && hasController {
		controller.IterationComplete(ctx, desc.ID, nil)
	}
}

func (s *Scheduler) awaitCompletion(id jobid.ID) {
	s.cacheMu.Lock()
	aj, ok := s.active[id]
	s.cacheMu.Unlock()
	if !ok {
		return
	}
	<-aj.job.Done()
	s.jobDone(id)
}

// jobDone implements SPEC_FULL.md §4.5's completion routing: persist
// the final state, remove the Job from the in-flight cache, and — if
// it belongs to an Optimizing Job — invoke that Optimizing Job's
// jobIterationComplete.
func (s *Scheduler) jobDone(id jobid.ID) {
	ctx := context.Background()

	s.cacheMu.Lock()
	aj, ok := s.active[id]
	s.cacheMu.Unlock()
	if !ok {
		return
	}
	finalState := aj.job.State()

	s.cacheMu.Lock()
	if s.active[id] != aj {
		s.cacheMu.Unlock()
		return
	}
	delete(s.active, id)
	for _, w := range aj.workers {
		delete(s.workerToJob, w.WorkerID())
	}
	s.done[id] = finalState
	controller, hasController := s.controllers[aj.desc.OptimizingJobID]
	s.cacheMu.Unlock()

	s.pool.Release(dispatcherIDs(aj.workers))
	s.persist(id, finalState)

	if aj.desc.OptimizingJobID != "" && hasController {
		controller.IterationComplete(ctx, id, aj.job)
	}
}

// HandleWorkerResult routes one worker's JobCompleted report to
// whichever active Job currently holds that worker. It is the
// CompletionHandler a coordinator process hands to
// internal/workerconn.NewServer, the single point where an otherwise
// job-agnostic worker connection's result rejoins the Job it belongs
// to. A result for a worker this Scheduler has no record of — e.g. a
// late report racing a restart — is logged and dropped rather than
// treated as an error.
func (s *Scheduler) HandleWorkerResult(result job.Result) {
	s.cacheMu.Lock()
	id, tracked := s.workerToJob[result.WorkerID]
	var aj *admittedJob
	if tracked {
		aj, tracked = s.active[id]
	}
	s.cacheMu.Unlock()

	if !tracked {
		s.logger.Warn("worker result for unknown or already-finished job", "worker_id", result.WorkerID)
		return
	}
	if err := aj.job.HandleWorkerCompleted(result); err != nil {
		logging.LogError(s.logger, err, "handle_worker_completed", "worker_id", result.WorkerID, "job_id", id.String())
	}
}

// Job looks up a Job by ID for the admin API: a live snapshot while
// it's in flight, or a state-only snapshot once it has terminated.
// Reports false if the ID is unknown to this Scheduler instance.
func (s *Scheduler) Job(id jobid.ID) (job.Snapshot, bool) {
	s.cacheMu.Lock()
	aj, active := s.active[id]
	state, terminated := s.done[id]
	s.cacheMu.Unlock()
	if active {
		return aj.job.Snapshot(), true
	}
	if terminated {
		return job.Snapshot{ID: id.String(), State: state}, true
	}
	return job.Snapshot{}, false
}

// Jobs returns a snapshot of every Job currently in flight, for the
// admin API's list-jobs endpoint.
func (s *Scheduler) Jobs() []job.Snapshot {
	s.cacheMu.Lock()
	jobs := make([]*job.Job, 0, len(s.active))
	for _, aj := range s.active {
		jobs = append(jobs, aj.job)
	}
	s.cacheMu.Unlock()
	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// CancelJob implements the admin API's cancel-a-single-Job operation:
// drop it from the pending queue if it hasn't started, or send every
// active worker a cancel control if it has. Reports whether the Job
// was found in either state.
func (s *Scheduler) CancelJob(ctx context.Context, id jobid.ID) (bool, error) {
	s.cacheMu.Lock()
	aj, active := s.active[id]
	pendingIdx := -1
	for i, desc := range s.pending {
		if desc.ID == id {
			pendingIdx = i
			break
		}
	}
	if pendingIdx >= 0 {
		s.pending = append(s.pending[:pendingIdx], s.pending[pendingIdx+1:]...)
	}
	s.cacheMu.Unlock()

	if active {
		workers := make(map[string]job.Dispatcher, len(aj.workers))
		for _, w := range aj.workers {
			workers[w.WorkerID()] = w
		}
		if err := aj.job.StopProcessing(ctx, workers, job.StateCancelled); err != nil {
			return true, errors.NewWorkerError(errors.ErrorCodeWorkerLocalError,
				"failed to stop job during cancel", "", err)
		}
		return true, nil
	}
	return pendingIdx >= 0, nil
}

// CancelOptimizingJob implements cancelOptimizingJob: if the named
// Optimizing Job has a pending or running child, it is sent a stop;
// returns whether one was found.
func (s *Scheduler) CancelOptimizingJob(ctx context.Context, optimizingJobID jobid.ID) (bool, error) {
	s.cacheMu.Lock()
	var runningChild *admittedJob
	for _, aj := range s.active {
		if aj.desc.OptimizingJobID == optimizingJobID {
			runningChild = aj
			break
		}
	}
	pendingIdx := -1
	for i, desc := range s.pending {
		if desc.OptimizingJobID == optimizingJobID {
			pendingIdx = i
			break
		}
	}
	if pendingIdx >= 0 {
		s.pending = append(s.pending[:pendingIdx], s.pending[pendingIdx+1:]...)
	}
	s.cacheMu.Unlock()

	if runningChild != nil {
		workers := make(map[string]job.Dispatcher, len(runningChild.workers))
		for _, w := range runningChild.workers {
			workers[w.WorkerID()] = w
		}
		if err := runningChild.job.StopProcessing(ctx, workers, job.StateCancelled); err != nil {
			return true, errors.NewWorkerError(errors.ErrorCodeWorkerLocalError,
				"failed to stop child job during optimizing-job cancel", "", err)
		}
		return true, nil
	}
	return pendingIdx >= 0, nil
}

// DecacheOptimizingJob drops the Optimizing Job's controller
// registration. Nothing reloads it: a later completion of one of that
// Optimizing Job's children is not routed to any controller.
func (s *Scheduler) DecacheOptimizingJob(optimizingJobID jobid.ID) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.controllers, optimizingJobID)
}

func (s *Scheduler) persist(id jobid.ID, state job.State) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveJobState(id, state); err != nil {
		logging.LogError(s.logger, err, "persist_job_state", "job_id", id.String())
	}
}

func dispatcherIDs(workers []job.Dispatcher) []string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.WorkerID()
	}
	return ids
}
