// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/store"
	"github.com/jontk/loadgen/internal/workload"
)

type fakeWorker struct{ id string }

func (f *fakeWorker) WorkerID() string                                   { return f.id }
func (f *fakeWorker) Dispatch(ctx context.Context, req job.Request) error { return nil }
func (f *fakeWorker) Control(ctx context.Context, signal job.ControlSignal) error { return nil }

type fakePool struct{}

func (p *fakePool) GetClientConnections(ctx context.Context, n int) ([]job.Dispatcher, error) {
	out := make([]job.Dispatcher, n)
	for i := range out {
		out[i] = &fakeWorker{id: "w" + string(rune('0'+i))}
	}
	return out, nil
}
func (p *fakePool) Release(ids []string) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "adminapi-test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sched := scheduler.New(&fakePool{}, st, "@every 50ms", nil)
	sched.Start()
	t.Cleanup(sched.Stop)

	registry := workload.NewRegistry(nil)
	registry.Register("net-throughput", workload.NewNetThroughput)

	return NewServer(Options{
		Scheduler: sched,
		Store:     st,
		Registry:  registry,
		Notifier:  nil,
	})
}

func TestHandleSubmitJob_AcceptsValidRequest(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"net-throughput","numClients":1,"threadsPerClient":1,"parameters":{"target":"localhost:9"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
}

func TestHandleSubmitJob_RejectsUnknownWorkload(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"does-not-exist","numClients":1,"threadsPerClient":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSubmitJob_RejectsMissingRequiredParameter(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"net-throughput","numClients":1,"threadsPerClient":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetJob_ReturnsRunningJobThenNotFoundForUnknown(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	submitBody := `{"workloadName":"net-throughput","numClients":1,"threadsPerClient":1,"parameters":{"target":"localhost:9"}}`
	submitReq := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(submitBody))
	submitRec := httptest.NewRecorder()
	handler.ServeHTTP(submitRec, submitReq)
	require.Equal(t, http.StatusAccepted, submitRec.Code)

	var accepted acceptedResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &accepted))

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+accepted.ID, nil)
		getRec := httptest.NewRecorder()
		handler.ServeHTTP(getRec, getReq)
		return getRec.Code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	missingReq := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/does-not-exist", nil)
	missingRec := httptest.NewRecorder()
	handler.ServeHTTP(missingRec, missingReq)
	require.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestHandleListJobs_FiltersByGroup(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	for _, group := range []string{"alpha", "beta"} {
		body := `{"workloadName":"net-throughput","numClients":1,"threadsPerClient":1,"group":"` + group +
			`","startTime":"2030-01-01T00:00:00Z","parameters":{"target":"localhost:9"}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?group=alpha", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var jobs []jobResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, "alpha", jobs[0].Group)
}

func TestHandleCancelJob_RemovesPendingJob(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"net-throughput","numClients":1,"threadsPerClient":1,` +
		`"startTime":"2030-01-01T00:00:00Z","parameters":{"target":"localhost:9"}}`
	submitReq := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	submitRec := httptest.NewRecorder()
	handler.ServeHTTP(submitRec, submitReq)
	require.Equal(t, http.StatusAccepted, submitRec.Code)

	var accepted acceptedResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &accepted))

	cancelReq := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+accepted.ID, nil)
	cancelRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelRec, cancelReq)
	require.Equal(t, http.StatusNoContent, cancelRec.Code)

	cancelAgainReq := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+accepted.ID, nil)
	cancelAgainRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelAgainRec, cancelAgainReq)
	require.Equal(t, http.StatusNotFound, cancelAgainRec.Code)
}

func TestHandleSubmitOptimizingJob_AcceptsValidRequest(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"net-throughput","numClients":1,"minThreads":1,"threadIncrement":1,` +
		`"maxThreads":2,"algorithmName":"single-statistic"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimizing-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
}

func TestHandleSubmitOptimizingJob_RejectsUnknownAlgorithm(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body := `{"workloadName":"net-throughput","numClients":1,"minThreads":1,"threadIncrement":1,` +
		`"algorithmName":"not-a-real-algorithm"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimizing-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelOptimizingJob_UnknownIDNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/optimizing-jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
