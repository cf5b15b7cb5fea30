// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package optimizing implements the Optimizing Job Controller from
// SPEC_FULL.md §4.6: the hill-climbing iteration loop that grows a
// workload's thread count one step at a time, asks an
// internal/algorithm.Algorithm whether each completed iteration is the
// best seen so far, and decides — via jobIterationComplete's decision
// tree — whether to schedule another iteration, re-run the best one,
// or stop.
package optimizing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jontk/loadgen/internal/algorithm"
	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/logging"
)

// Submitter is the subset of internal/scheduler.Scheduler the
// controller needs to enqueue iteration children. Declared locally,
// the way internal/job declares Dispatcher, so this package depends
// only on the method it calls.
type Submitter interface {
	Submit(desc scheduler.Descriptor)
}

// Notifier is the capability internal/notify supplies; the controller
// depends only on this interface to avoid importing internal/notify
// directly.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is the content SPEC_FULL.md §4.6's last paragraph
// requires on every terminal transition.
type Notification struct {
	OptimizingJobID     jobid.ID
	ActualStart         time.Time
	ActualStop          time.Time
	FinalState          job.State
	StopReason          string
	AlgorithmParameters algorithm.Params
	OptimalThreads      int
	OptimalValue        float64
	HasRerunValue       bool
	RerunValue          float64
	Addresses           []string
}

// Config is an Optimizing Job's static configuration, fixed for its
// lifetime.
type Config struct {
	OptimizingJobID        jobid.ID
	WorkloadName           string
	NumClients             int
	MinThreads             int
	MaxThreads             int // <= 0 means uncapped
	ThreadIncrement        int
	ReRunBest              bool
	ReRunDuration          time.Duration
	DelayBetweenIterations time.Duration
	MaxNonImproving        int
	Description            string
	NotifyAddresses        []string
	AlgorithmParams        algorithm.Params
}

// ChildRecord is what the controller keeps about one scheduled
// iteration, enough to recognize it again in IterationComplete and to
// replay legacy state on reload. Exported so a persistence adapter can
// round-trip the child list.
type ChildRecord struct {
	ID      jobid.ID
	Threads int
	IsRerun bool
}

// Controller runs one Optimizing Job's iteration loop.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	algorithm algorithm.Algorithm
	submitter Submitter
	notifier  Notifier
	logger    logging.Logger
	cron      *cron.Cron

	children              []ChildRecord
	currentOptimalID      jobid.ID
	currentOptimalThreads int
	currentOptimalValue   float64
	currentNonImproving   int
	reRunIteration        jobid.ID
	cancelRequested       bool
	pauseRequested        bool
	terminal              bool
	startedAt             time.Time
}

// New constructs a Controller for a freshly-created Optimizing Job.
// Call ScheduleFirstIteration to actually start it, or ReplayLegacyState
// when reconstructing one from persistence.
func New(cfg Config, alg algorithm.Algorithm, submitter Submitter, notifier Notifier, cronRunner *cron.Cron, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Controller{
		cfg:       cfg,
		algorithm: alg,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger,
		cron:      cronRunner,
		startedAt: time.Now(),
	}
}

// ScheduleFirstIteration implements SPEC_FULL.md §4.6's "Schedule
// (first iteration)": a child at minThreads, described with an
// optional "N Thread(s)" prefix, submitted immediately.
func (c *Controller) ScheduleFirstIteration() error {
	if err := c.algorithm.Initialize(c.cfg.AlgorithmParams, nil); err != nil {
		return err
	}

	c.mu.Lock()
	childID := jobid.NewChild(c.cfg.OptimizingJobID, c.cfg.MinThreads)
	c.children = append(c.children, ChildRecord{ID: childID, Threads: c.cfg.MinThreads})
	c.mu.Unlock()

	c.submitter.Submit(scheduler.Descriptor{
		ID:               childID,
		WorkloadName:     c.cfg.WorkloadName,
		NumClients:       c.cfg.NumClients,
		ThreadsPerClient: c.cfg.MinThreads,
		StartTime:        time.Now(),
		OptimizingJobID:  c.cfg.OptimizingJobID,
	})

	logging.LogIteration(c.logger, c.cfg.OptimizingJobID.String(), c.cfg.MinThreads).Info(
		"scheduled first optimizing-job iteration", "description", describeIteration(c.cfg.Description, c.cfg.MinThreads))
	return nil
}

// ReplayLegacyState implements "Loading legacy state": when reloading
// from persistence with no captured algorithm state, the controller
// re-plays the algorithm's initialization over the persisted child
// list in their stored order, preserving the total ordering of §4.3.
// trackersByChild supplies each child's aggregated trackers, as read
// back from internal/store, so the algorithm can recompute
// bestValueSoFar exactly as if it had been running continuously.
func (c *Controller) ReplayLegacyState(persisted []ChildRecord, trackersByChild map[jobid.ID]map[string]stats.Tracker) error {
	sorted := append([]ChildRecord(nil), persisted...)
	sort.Slice(sorted, func(i, j int) bool { return jobid.Less(sorted[i].ID, sorted[j].ID) })

	replay := make([]algorithm.Iteration, 0, len(sorted))
	for _, rec := range sorted {
		replay = append(replay, algorithm.Iteration{JobID: rec.ID, Threads: rec.Threads, Trackers: trackersByChild[rec.ID]})
	}
	if err := c.algorithm.Initialize(c.cfg.AlgorithmParams, replay); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = sorted
	for _, rec := range sorted {
		if rec.IsRerun {
			c.reRunIteration = rec.ID
		}
	}
	return nil
}

// IterationComplete implements jobIterationComplete's decision tree.
// It satisfies internal/scheduler.Controller.
func (c *Controller) IterationComplete(ctx context.Context, childID jobid.ID, child *job.Job) {
	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return
	}

	// 1. Null guard.
	if child == nil {
		c.mu.Unlock()
		c.terminate(ctx, job.StateStoppedDueToError, "null iteration")
		return
	}

	// 2. Cancellation.
	if c.cancelRequested {
		c.mu.Unlock()
		c.terminate(ctx, job.StateCancelled, "cancelled")
		return
	}

	snap := child.Snapshot()

	// 3. Acceptable stop.
	switch snap.State {
	case job.StateCompletedSuccessfully, job.StateStoppedDueToDuration, job.StateStoppedDueToStopTime:
	default:
		c.mu.Unlock()
		c.terminate(ctx, job.StateStoppedDueToError, fmt.Sprintf("child %s ended in state %s", childID, snap.State))
		return
	}

	// 4. Rerun child completed.
	if c.reRunIteration != "" && childID == c.reRunIteration {
		c.mu.Unlock()
		c.terminate(ctx, job.StateCompletedSuccessfully, "after re-running the best")
		return
	}
	c.mu.Unlock()

	// Best-so-far tracking, consulted once per completion, before the
	// rest of the decision tree.
	it := algorithm.Iteration{JobID: childID, Threads: snap.ThreadsPerClient, Trackers: byDisplayName(child.Trackers())}
	isBest, err := c.algorithm.IsBestIterationSoFar(it)
	if err != nil {
		c.terminate(ctx, job.StateStoppedDueToError, fmt.Sprintf("algorithm error: %s", err.Error()))
		return
	}

	c.mu.Lock()
	if isBest {
		c.currentOptimalID = childID
		c.currentOptimalThreads = snap.ThreadsPerClient
		c.currentNonImproving = 0
		if v, err := c.algorithm.GetIterationOptimizationValue(it); err == nil {
			c.currentOptimalValue = v
		}
	} else {
		c.currentNonImproving++
	}

	maxThreads := c.cfg.MaxThreads
	threadCapReached := maxThreads > 0 && snap.ThreadsPerClient >= maxThreads
	nonImprovingCapReached := c.cfg.MaxNonImproving > 0 && c.currentNonImproving >= c.cfg.MaxNonImproving

	if threadCapReached || nonImprovingCapReached {
		reason := "maximum threads reached"
		if nonImprovingCapReached && !threadCapReached {
			reason = "maximum non-improving iterations reached"
		}
		rerunBest := c.cfg.ReRunBest && c.currentOptimalThreads > 0
		c.mu.Unlock()
		if rerunBest {
			c.scheduleRerun(ctx)
			return
		}
		c.terminate(ctx, job.StateCompletedSuccessfully, reason)
		return
	}

	// 7. Otherwise schedule the next iteration.
	nextThreads := snap.ThreadsPerClient + c.cfg.ThreadIncrement
	if maxThreads > 0 && nextThreads > maxThreads {
		nextThreads = maxThreads
	}
	nextID := jobid.NewChild(c.cfg.OptimizingJobID, nextThreads)
	pause := c.pauseRequested
	c.pauseRequested = false
	c.children = append(c.children, ChildRecord{ID: nextID, Threads: nextThreads})
	c.mu.Unlock()

	c.scheduleAfter(c.cfg.DelayBetweenIterations, func() {
		c.submitter.Submit(scheduler.Descriptor{
			ID:               nextID,
			WorkloadName:     c.cfg.WorkloadName,
			NumClients:       c.cfg.NumClients,
			ThreadsPerClient: nextThreads,
			StartTime:        time.Now(),
			OptimizingJobID:  c.cfg.OptimizingJobID,
		})
		logging.LogIteration(c.logger, c.cfg.OptimizingJobID.String(), nextThreads).Info(
			"scheduled next optimizing-job iteration", "paused", pause)
	})
}

// scheduleRerun implements "Rerun scheduling": a child at
// currentOptimalThreads, recorded as reRunIteration. The submitted
// Descriptor carries no duration, so Config.ReRunDuration is not applied;
// the rerun child is submitted like any other iteration.
func (c *Controller) scheduleRerun(ctx context.Context) {
	c.mu.Lock()
	rerunID := jobid.NewRerunChild(c.cfg.OptimizingJobID, c.currentOptimalThreads)
	c.reRunIteration = rerunID
	c.children = append(c.children, ChildRecord{ID: rerunID, Threads: c.currentOptimalThreads, IsRerun: true})
	threads := c.currentOptimalThreads
	c.mu.Unlock()

	c.submitter.Submit(scheduler.Descriptor{
		ID:               rerunID,
		WorkloadName:     c.cfg.WorkloadName,
		NumClients:       c.cfg.NumClients,
		ThreadsPerClient: threads,
		StartTime:        time.Now(),
		OptimizingJobID:  c.cfg.OptimizingJobID,
	})
	logging.LogIteration(c.logger, c.cfg.OptimizingJobID.String(), threads).Info("scheduled rerun of best iteration")
}

// terminate applies a terminal transition: mark done (so a racing
// IterationComplete cannot act twice), drop the Optimizing Job's
// registration through the submitter's DecacheOptimizingJob when it has
// one (internal/scheduler.Scheduler does), and notify.
func (c *Controller) terminate(ctx context.Context, state job.State, reason string) {
	c.mu.Lock()
	c.terminal = true
	optimalThreads := c.currentOptimalThreads
	optimalValue := c.currentOptimalValue
	addresses := c.cfg.NotifyAddresses
	params := c.cfg.AlgorithmParams
	startedAt := c.startedAt
	c.mu.Unlock()

	logging.LogJobEvent(c.logger, c.cfg.OptimizingJobID.String(), string(state)).Info(
		"optimizing job terminated", "reason", reason)

	if d, ok := c.submitter.(interface{ DecacheOptimizingJob(jobid.ID) }); ok {
		d.DecacheOptimizingJob(c.cfg.OptimizingJobID)
	}

	if c.notifier == nil || len(addresses) == 0 {
		return
	}
	n := Notification{
		OptimizingJobID:     c.cfg.OptimizingJobID,
		ActualStart:         startedAt,
		ActualStop:          time.Now(),
		FinalState:          state,
		StopReason:          reason,
		AlgorithmParameters: params,
		OptimalThreads:      optimalThreads,
		OptimalValue:        optimalValue,
		Addresses:           addresses,
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		logging.LogError(c.logger, err, "optimizing_job_notify", "optimizing_job_id", c.cfg.OptimizingJobID.String())
	}
}

// IsTerminal reports whether the Optimizing Job has reached a final
// decision and stopped scheduling further iterations.
func (c *Controller) IsTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// RequestCancel marks the controller cancelled; the next
// IterationComplete carries it to CANCELLED. A still-pending or
// running child is stopped separately by
// internal/scheduler.Scheduler.CancelOptimizingJob.
func (c *Controller) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelRequested = true
}

// RequestPause sets a pause flag that the next scheduled iteration
// consumes and clears. The flag is recorded only in that iteration's
// "paused" log field: the iteration is submitted and admitted like any
// other, and is not created DISABLED.
func (c *Controller) RequestPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseRequested = true
}

// Children returns a snapshot of the recorded iteration list, in
// stored total order, for persistence.
func (c *Controller) Children() []ChildRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChildRecord(nil), c.children...)
}

// scheduleAfter runs fn once, after delay, using a one-shot
// robfig/cron schedule rather than a bare time.Sleep, so the
// controller never blocks a goroutine for the inter-iteration delay.
func (c *Controller) scheduleAfter(delay time.Duration, fn func()) {
	if delay <= 0 {
		fn()
		return
	}
	var entryID cron.EntryID
	entryID = c.cron.Schedule(onceAt(time.Now().Add(delay)), cron.FuncJob(func() {
		c.cron.Remove(entryID)
		fn()
	}))
}

// onceSchedule fires at exactly one instant and never again: once the
// target time has passed, Next returns a time a century out so the
// entry — removed by its own handler immediately on firing — can never
// legitimately fire twice even if Remove raced a tick.
type onceSchedule struct {
	at time.Time
}

func onceAt(at time.Time) cron.Schedule { return onceSchedule{at: at} }

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return t.AddDate(100, 0, 0)
}

// byDisplayName re-keys a Job's aggregated trackers (keyed by
// DisplayName+"@"+CollectionInterval, so trackers of the same name but
// different intervals never collide within a Job) down to the bare
// DisplayName keying algorithm.Iteration.Trackers expects.
func byDisplayName(trackers map[string]stats.Tracker) map[string]stats.Tracker {
	out := make(map[string]stats.Tracker, len(trackers))
	for _, tr := range trackers {
		out[tr.DisplayName()] = tr
	}
	return out
}

func describeIteration(description string, threads int) string {
	prefix := fmt.Sprintf("%d Thread", threads)
	if threads != 1 {
		prefix += "s"
	}
	if description == "" {
		return prefix
	}
	return prefix + " " + description
}
