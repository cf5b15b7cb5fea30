// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
)

type fakeWorker struct {
	id       string
	controls []job.ControlSignal
}

func (f *fakeWorker) WorkerID() string { return f.id }
func (f *fakeWorker) Dispatch(ctx context.Context, req job.Request) error { return nil }
func (f *fakeWorker) Control(ctx context.Context, signal job.ControlSignal) error {
	f.controls = append(f.controls, signal)
	return nil
}

type fakePool struct {
	mu        sync.Mutex
	workers   []job.Dispatcher
	released  []string
	shortfall bool
}

func (p *fakePool) GetClientConnections(ctx context.Context, n int) ([]job.Dispatcher, error) {
	if p.shortfall {
		return nil, context.DeadlineExceeded
	}
	out := make([]job.Dispatcher, n)
	for i := 0; i < n; i++ {
		out[i] = &fakeWorker{id: "w" + string(rune('0'+i))}
	}
	return out, nil
}

func (p *fakePool) Release(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, ids...)
}

type fakePersister struct {
	mu     sync.Mutex
	states map[jobid.ID]job.State
}

func newFakePersister() *fakePersister {
	return &fakePersister{states: make(map[jobid.ID]job.State)}
}

func (p *fakePersister) SaveJobState(id jobid.ID, state job.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[id] = state
	return nil
}

func (p *fakePersister) get(id jobid.ID) (job.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[id]
	return s, ok
}

type fakeController struct {
	mu       sync.Mutex
	notified []jobid.ID
}

func (c *fakeController) IterationComplete(ctx context.Context, childID jobid.ID, child *job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified = append(c.notified, childID)
}

func newTestID(counter int) jobid.ID {
	return jobid.New(time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC), counter)
}

// completeActiveJob simulates every dispatched worker reporting success
// for an admitted job, which is normally driven by internal/workerconn.
func completeActiveJob(t *testing.T, s *Scheduler, id jobid.ID) {
	t.Helper()
	s.cacheMu.Lock()
	aj, ok := s.active[id]
	s.cacheMu.Unlock()
	require.True(t, ok, "job %s was not admitted", id)
	for _, w := range aj.workers {
		require.NoError(t, aj.job.HandleWorkerCompleted(job.Result{WorkerID: w.WorkerID(), State: job.StateCompletedSuccessfully}))
	}
}

func TestAdmission_RunsReadyJobImmediately(t *testing.T) {
	pool := &fakePool{}
	persister := newFakePersister()
	s := New(pool, persister, "", nil)

	id := newTestID(1)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 2, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute)})

	s.runAdmissionLoop()
	completeActiveJob(t, s, id)

	require.Eventually(t, func() bool {
		state, ok := persister.get(id)
		return ok && state == job.StateCompletedSuccessfully
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdmission_RespectsFutureStartTime(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)

	id := newTestID(2)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 1, StartTime: time.Now().Add(time.Hour)})

	s.runAdmissionLoop()

	s.cacheMu.Lock()
	_, admitted := s.active[id]
	pendingCount := len(s.pending)
	s.cacheMu.Unlock()

	require.False(t, admitted)
	require.Equal(t, 1, pendingCount)
}

func TestAdmission_GatesOnUnterminatedDependency(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)

	dep := newTestID(3)
	id := newTestID(4)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute), Dependencies: []jobid.ID{dep}})

	s.runAdmissionLoop()

	s.cacheMu.Lock()
	_, admitted := s.active[id]
	pendingCount := len(s.pending)
	s.cacheMu.Unlock()
	require.False(t, admitted)
	require.Equal(t, 1, pendingCount)

	// Dependency terminates non-successfully — downstream job still unblocks.
	s.cacheMu.Lock()
	s.done[dep] = job.StateStoppedDueToError
	s.cacheMu.Unlock()

	s.runAdmissionLoop()
	require.Eventually(t, func() bool {
		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		_, stillActive := s.active[id]
		return stillActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJobDone_RoutesToOptimizingController(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)
	controller := &fakeController{}

	optimizingID := newTestID(5)
	childID := jobid.NewChild(optimizingID, 4)
	s.RegisterOptimizingController(optimizingID, controller)
	s.Submit(Descriptor{ID: childID, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 4, StartTime: time.Now().Add(-time.Minute), OptimizingJobID: optimizingID})

	s.runAdmissionLoop()
	completeActiveJob(t, s, childID)

	require.Eventually(t, func() bool {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		return len(controller.notified) == 1 && controller.notified[0] == childID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelOptimizingJob_RemovesPendingChild(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)

	optimizingID := newTestID(6)
	childID := jobid.NewChild(optimizingID, 8)
	s.Submit(Descriptor{ID: childID, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 8, StartTime: time.Now().Add(time.Hour), OptimizingJobID: optimizingID})

	found, err := s.CancelOptimizingJob(context.Background(), optimizingID)
	require.NoError(t, err)
	require.True(t, found)

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	require.Empty(t, s.pending)
}

func TestCancelOptimizingJob_NoChildFound(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)

	found, err := s.CancelOptimizingJob(context.Background(), newTestID(7))
	require.NoError(t, err)
	require.False(t, found)
}

func TestJob_ReturnsLiveSnapshotThenTerminalStateAfterCompletion(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, newFakePersister(), "", nil)

	id := newTestID(8)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute)})
	s.runAdmissionLoop()

	snap, ok := s.Job(id)
	require.True(t, ok)
	require.Equal(t, job.StateRunning, snap.State)

	completeActiveJob(t, s, id)
	require.Eventually(t, func() bool {
		snap, ok := s.Job(id)
		return ok && snap.State == job.StateCompletedSuccessfully
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJob_UnknownIDNotFound(t *testing.T) {
	s := New(&fakePool{}, nil, "", nil)
	_, ok := s.Job(newTestID(9))
	require.False(t, ok)
}

func TestJobs_ListsOnlyInFlightJobs(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, newFakePersister(), "", nil)

	id := newTestID(10)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute)})
	s.runAdmissionLoop()

	snaps := s.Jobs()
	require.Len(t, snaps, 1)
	require.Equal(t, id.String(), snaps[0].ID)

	completeActiveJob(t, s, id)
	require.Eventually(t, func() bool { return len(s.Jobs()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCancelJob_RemovesPendingJob(t *testing.T) {
	s := New(&fakePool{}, nil, "", nil)

	id := newTestID(11)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 1, ThreadsPerClient: 1, StartTime: time.Now().Add(time.Hour)})

	found, err := s.CancelJob(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	require.Empty(t, s.pending)
}

func TestCancelJob_SendsControlToActiveWorkers(t *testing.T) {
	pool := &fakePool{}
	s := New(pool, nil, "", nil)

	id := newTestID(12)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 2, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute)})
	s.runAdmissionLoop()

	found, err := s.CancelJob(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)

	s.cacheMu.Lock()
	aj := s.active[id]
	s.cacheMu.Unlock()
	require.NotNil(t, aj)
	for _, w := range aj.workers {
		fw := w.(*fakeWorker)
		require.Contains(t, fw.controls, job.ControlCancel)
	}
}

func TestCancelJob_UnknownIDNotFound(t *testing.T) {
	s := New(&fakePool{}, nil, "", nil)
	found, err := s.CancelJob(context.Background(), newTestID(13))
	require.NoError(t, err)
	require.False(t, found)
}

func TestHandleWorkerResult_RoutesToOwningJobAndFinalizes(t *testing.T) {
	pool := &fakePool{}
	persister := newFakePersister()
	s := New(pool, persister, "", nil)

	id := newTestID(14)
	s.Submit(Descriptor{ID: id, WorkloadName: "net-throughput", NumClients: 2, ThreadsPerClient: 1, StartTime: time.Now().Add(-time.Minute)})
	s.runAdmissionLoop()

	s.cacheMu.Lock()
	aj := s.active[id]
	s.cacheMu.Unlock()
	require.NotNil(t, aj)

	for _, w := range aj.workers {
		s.HandleWorkerResult(job.Result{WorkerID: w.WorkerID(), State: job.StateCompletedSuccessfully})
	}

	require.Eventually(t, func() bool {
		state, ok := persister.get(id)
		return ok && state == job.StateCompletedSuccessfully
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWorkerResult_UnknownWorkerIsDropped(t *testing.T) {
	s := New(&fakePool{}, nil, "", nil)
	s.HandleWorkerResult(job.Result{WorkerID: "no-such-worker", State: job.StateCompletedSuccessfully})
}
