// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package optimizing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/internal/algorithm"
	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/stats"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	submits []scheduler.Descriptor
}

func (s *fakeSubmitter) Submit(desc scheduler.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, desc)
}

func (s *fakeSubmitter) last() (scheduler.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submits) == 0 {
		return scheduler.Descriptor{}, false
	}
	return s.submits[len(s.submits)-1], true
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submits)
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, notif Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notif)
	return nil
}

func (n *fakeNotifier) last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notifications) == 0 {
		return Notification{}, false
	}
	return n.notifications[len(n.notifications)-1], true
}

func newTestOptimizingID() jobid.ID {
	return jobid.New(time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC), 1)
}

func opsTracker(value int64) stats.Tracker {
	tr := stats.NewIncremental("c1", "t0", "ops-per-sec", time.Second, true)
	tr.Increment(0, value)
	return tr
}

// finishedChild builds a *job.Job already in a terminal state with one
// worker's trackers aggregated in, standing in for a completed
// iteration as the Scheduler would hand it to IterationComplete.
func finishedChild(t *testing.T, id jobid.ID, threads int, opsValue int64, state job.State) *job.Job {
	t.Helper()
	j := job.New(id, "net-throughput", 1, threads, nil)
	require.NoError(t, j.Start(context.Background(), []job.Dispatcher{&noopDispatcher{id: "w0"}}))
	require.NoError(t, j.HandleWorkerCompleted(job.Result{
		WorkerID: "w0",
		State:    state,
		Trackers: []stats.Tracker{opsTracker(opsValue)},
	}))
	return j
}

type noopDispatcher struct{ id string }

func (d *noopDispatcher) WorkerID() string                                         { return d.id }
func (d *noopDispatcher) Dispatch(ctx context.Context, req job.Request) error       { return nil }
func (d *noopDispatcher) Control(ctx context.Context, signal job.ControlSignal) error { return nil }

func newTestController(submitter *fakeSubmitter, notifier *fakeNotifier, maxThreads, maxNonImproving int, rerun bool) *Controller {
	cfg := Config{
		OptimizingJobID: newTestOptimizingID(),
		WorkloadName:    "net-throughput",
		NumClients:      1,
		MinThreads:      4,
		MaxThreads:      maxThreads,
		ThreadIncrement: 4,
		ReRunBest:       rerun,
		ReRunDuration:   time.Minute,
		MaxNonImproving: maxNonImproving,
		NotifyAddresses: []string{"oncall@example.com"},
		AlgorithmParams: algorithm.Params{OptimizeStatistic: "ops-per-sec", OptimizeType: algorithm.Maximize},
	}
	alg := algorithm.NewSingleStatistic()
	return New(cfg, alg, submitter, notifier, cron.New(), nil)
}

func TestScheduleFirstIteration_SubmitsMinThreadsChild(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := newTestController(submitter, nil, 16, 3, false)
	require.NoError(t, c.ScheduleFirstIteration())

	desc, ok := submitter.last()
	require.True(t, ok)
	require.Equal(t, 4, desc.ThreadsPerClient)
	require.Equal(t, c.cfg.OptimizingJobID, desc.OptimizingJobID)
}

func TestIterationComplete_SchedulesNextOnImprovement(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := newTestController(submitter, nil, 16, 3, false)
	require.NoError(t, c.ScheduleFirstIteration())

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	child := finishedChild(t, firstID, 4, 100, job.StateCompletedSuccessfully)

	c.IterationComplete(context.Background(), firstID, child)

	desc, ok := submitter.last()
	require.True(t, ok)
	require.Equal(t, 8, desc.ThreadsPerClient)
	require.False(t, c.IsTerminal())
}

func TestIterationComplete_NullChildTerminatesWithError(t *testing.T) {
	submitter := &fakeSubmitter{}
	notifier := &fakeNotifier{}
	c := newTestController(submitter, notifier, 16, 3, false)
	require.NoError(t, c.ScheduleFirstIteration())

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	c.IterationComplete(context.Background(), firstID, nil)

	require.True(t, c.IsTerminal())
	notif, ok := notifier.last()
	require.True(t, ok)
	require.Equal(t, job.StateStoppedDueToError, notif.FinalState)
	require.Equal(t, "null iteration", notif.StopReason)
}

func TestIterationComplete_ThreadCapReachedWithoutRerun(t *testing.T) {
	submitter := &fakeSubmitter{}
	notifier := &fakeNotifier{}
	c := newTestController(submitter, notifier, 4, 10, false)
	require.NoError(t, c.ScheduleFirstIteration())

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	child := finishedChild(t, firstID, 4, 100, job.StateCompletedSuccessfully)

	c.IterationComplete(context.Background(), firstID, child)

	require.True(t, c.IsTerminal())
	notif, ok := notifier.last()
	require.True(t, ok)
	require.Equal(t, job.StateCompletedSuccessfully, notif.FinalState)
	require.Equal(t, "maximum threads reached", notif.StopReason)
}

func TestIterationComplete_ThreadCapReachedWithRerun(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := newTestController(submitter, nil, 4, 10, true)
	require.NoError(t, c.ScheduleFirstIteration())

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	child := finishedChild(t, firstID, 4, 100, job.StateCompletedSuccessfully)
	c.IterationComplete(context.Background(), firstID, child)

	require.False(t, c.IsTerminal())
	desc, ok := submitter.last()
	require.True(t, ok)
	require.Equal(t, jobid.NewRerunChild(c.cfg.OptimizingJobID, 4), desc.ID)

	c.IterationComplete(context.Background(), desc.ID, finishedChild(t, desc.ID, 4, 100, job.StateCompletedSuccessfully))
	require.True(t, c.IsTerminal())
}

func TestIterationComplete_UnacceptableStopState(t *testing.T) {
	submitter := &fakeSubmitter{}
	notifier := &fakeNotifier{}
	c := newTestController(submitter, notifier, 16, 3, false)
	require.NoError(t, c.ScheduleFirstIteration())

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	child := finishedChild(t, firstID, 4, 100, job.StateStoppedByUser)

	c.IterationComplete(context.Background(), firstID, child)

	require.True(t, c.IsTerminal())
	notif, _ := notifier.last()
	require.Equal(t, job.StateStoppedDueToError, notif.FinalState)
}

func TestIterationComplete_CancelledPreemptsDecisionTree(t *testing.T) {
	submitter := &fakeSubmitter{}
	notifier := &fakeNotifier{}
	c := newTestController(submitter, notifier, 16, 3, false)
	require.NoError(t, c.ScheduleFirstIteration())
	c.RequestCancel()

	firstID := jobid.NewChild(c.cfg.OptimizingJobID, 4)
	child := finishedChild(t, firstID, 4, 100, job.StateCompletedSuccessfully)
	c.IterationComplete(context.Background(), firstID, child)

	require.True(t, c.IsTerminal())
	notif, _ := notifier.last()
	require.Equal(t, job.StateCancelled, notif.FinalState)
}
