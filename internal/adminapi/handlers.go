// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/oapi-codegen/runtime"

	"github.com/jontk/loadgen/internal/algorithm"
	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/store"
	"github.com/jontk/loadgen/internal/workload"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"malformed request body", "", nil, err))
		return
	}

	capability, err := s.registry.Get(req.WorkloadName)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	id := s.nextJobID()
	info := workload.JobInfo{
		JobID:      id.String(),
		Parameters: req.Parameters,
		NumClients: req.NumClients,
		Threads:    req.ThreadsPerClient,
	}
	if err := workload.ValidateParameters(capability.ParameterStubs(), req.Parameters); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := capability.ValidateJobInfo(info); err != nil {
		writeError(w, s.logger, err)
		return
	}

	deps := make([]jobid.ID, 0, len(req.Dependencies))
	for _, d := range req.Dependencies {
		deps = append(deps, jobid.ID(d))
	}

	scheduledDuration, err := parseOptionalDuration(req.ScheduledDuration)
	if err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid scheduledDuration", "scheduledDuration", req.ScheduledDuration, err))
		return
	}
	collectionInterval, err := parseOptionalDuration(req.CollectionInterval)
	if err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid collectionInterval", "collectionInterval", req.CollectionInterval, err))
		return
	}
	threadStartupDelay, err := parseOptionalDuration(req.ThreadStartupDelay)
	if err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid threadStartupDelay", "threadStartupDelay", req.ThreadStartupDelay, err))
		return
	}

	startTime := time.Now()
	if req.StartTime != nil {
		startTime = *req.StartTime
	}

	paramStrings := make(map[string]string, len(req.Parameters))
	for k, v := range req.Parameters {
		paramStrings[k] = toParamString(v)
	}

	rec := store.JobRecord{
		ID:                 id,
		WorkloadName:            req.WorkloadName,
		Group:                   req.Group,
		Folder:                  req.Folder,
		State:                   job.StateNotYetStarted,
		Description:             req.Description,
		ScheduledStart:          startTime,
		ScheduledDuration:       scheduledDuration,
		NumClients:              req.NumClients,
		RequestedMonitorClients: req.RequestedMonitorClients,
		MonitorIfAvailable:      req.MonitorIfAvailable,
		WaitForClients:          req.WaitForClients,
		ThreadsPerClient:        req.ThreadsPerClient,
		ThreadStartupDelay:      threadStartupDelay,
		Dependencies:            deps,
		NotifyAddresses:         req.NotifyAddresses,
		CollectionInterval:      collectionInterval,
		Comments:                req.Comments,
		Parameters:              paramStrings,
	}
	if err := s.store.SaveJob(rec); err != nil {
		logging.LogError(s.logger, err, "save_job", "job_id", id.String())
	}

	s.scheduler.Submit(scheduler.Descriptor{
		ID:               id,
		WorkloadName:     req.WorkloadName,
		NumClients:       req.NumClients,
		ThreadsPerClient: req.ThreadsPerClient,
		StartTime:        startTime,
		Dependencies:     deps,
	})

	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id.String()})
}

func (s *Server) handleSubmitOptimizingJob(w http.ResponseWriter, r *http.Request) {
	var req submitOptimizingJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"malformed request body", "", nil, err))
		return
	}
	if _, err := s.registry.Get(req.WorkloadName); err != nil {
		writeError(w, s.logger, err)
		return
	}

	alg, err := algorithm.ByName(req.AlgorithmName, req.AlgorithmParams)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	reRunDuration, err := parseOptionalDuration(req.ReRunDuration)
	if err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid reRunDuration", "reRunDuration", req.ReRunDuration, err))
		return
	}
	delayBetweenIterations, err := parseOptionalDuration(req.DelayBetweenIterations)
	if err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid delayBetweenIterations", "delayBetweenIterations", req.DelayBetweenIterations, err))
		return
	}

	id := s.nextJobID()
	cfg := optimizing.Config{
		OptimizingJobID:        id,
		WorkloadName:           req.WorkloadName,
		NumClients:             req.NumClients,
		MinThreads:             req.MinThreads,
		MaxThreads:             req.MaxThreads,
		ThreadIncrement:        req.ThreadIncrement,
		ReRunBest:              req.ReRunBest,
		ReRunDuration:          reRunDuration,
		DelayBetweenIterations: delayBetweenIterations,
		MaxNonImproving:        req.MaxNonImproving,
		Description:            req.Description,
		NotifyAddresses:        req.NotifyAddresses,
		AlgorithmParams:        req.AlgorithmParams,
	}

	controller := optimizing.New(cfg, alg, s.scheduler, s.notifier, s.cron, s.logger)
	if err := controller.ScheduleFirstIteration(); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.scheduler.RegisterOptimizingController(id, controller)

	s.controllersMu.Lock()
	s.controllers[id] = controller
	s.controllersMu.Unlock()

	if err := s.store.SaveOptimizingJob(store.OptimizingJobRecord{
		ID:                     id,
		WorkloadName:           req.WorkloadName,
		NumClients:             req.NumClients,
		MinThreads:             req.MinThreads,
		MaxThreads:             req.MaxThreads,
		ThreadIncrement:        req.ThreadIncrement,
		ReRunBest:              req.ReRunBest,
		ReRunDuration:          reRunDuration,
		DelayBetweenIterations: delayBetweenIterations,
		MaxNonImproving:        req.MaxNonImproving,
		Description:            req.Description,
		NotifyAddresses:        req.NotifyAddresses,
		AlgorithmName:          req.AlgorithmName,
		AlgorithmParams:        req.AlgorithmParams,
	}); err != nil {
		logging.LogError(s.logger, err, "save_optimizing_job", "optimizing_job_id", id.String())
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id.String()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := jobid.ID(mux.Vars(r)["job_id"])

	if snap, ok := s.scheduler.Job(id); ok {
		writeJSON(w, http.StatusOK, snapshotToResponse(snap))
		return
	}

	rec, err := s.store.LoadJob(id)
	if err != nil {
		writeNotFound(w, "job "+id.String()+" not found")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		ID:               rec.ID.String(),
		WorkloadName:     rec.WorkloadName,
		OptimizingJobID:  rec.OptimizingJobID.String(),
		Group:            rec.Group,
		State:            string(rec.State),
		NumClients:       rec.NumClients,
		ThreadsPerClient: rec.ThreadsPerClient,
		StartedAt:        rec.ActualStart,
		StoppedAt:        rec.ActualStop,
	})
}

// handleListJobs applies optional "state" (repeatable) and "group"
// query-parameter filters, bound with oapi-codegen/runtime the way a
// generated OpenAPI handler would rather than hand-parsing url.Values.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var states []string
	if err := runtime.BindQueryParameter("form", true, false, "state", r.URL.Query(), &states); err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid state filter", "state", r.URL.Query().Get("state"), err))
		return
	}
	var group string
	if err := runtime.BindQueryParameter("form", false, false, "group", r.URL.Query(), &group); err != nil {
		writeError(w, s.logger, errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"invalid group filter", "group", r.URL.Query().Get("group"), err))
		return
	}

	records, err := s.store.LoadAllJobs()
	if err != nil {
		writeError(w, s.logger, errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed,
			"failed to list jobs", err))
		return
	}

	out := make([]jobResponse, 0, len(records))
	for _, rec := range records {
		if group != "" && rec.Group != group {
			continue
		}
		if len(states) > 0 && !containsState(states, rec.State) {
			continue
		}
		out = append(out, jobResponse{
			ID:               rec.ID.String(),
			WorkloadName:     rec.WorkloadName,
			OptimizingJobID:  rec.OptimizingJobID.String(),
			Group:            rec.Group,
			State:            string(rec.State),
			NumClients:       rec.NumClients,
			ThreadsPerClient: rec.ThreadsPerClient,
			StartedAt:        rec.ActualStart,
			StoppedAt:        rec.ActualStop,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := jobid.ID(mux.Vars(r)["job_id"])
	found, err := s.scheduler.CancelJob(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !found {
		writeNotFound(w, "job "+id.String()+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelOptimizingJob(w http.ResponseWriter, r *http.Request) {
	id := jobid.ID(mux.Vars(r)["optimizing_job_id"])

	s.controllersMu.Lock()
	controller, hasController := s.controllers[id]
	s.controllersMu.Unlock()
	if hasController {
		controller.RequestCancel()
	}

	found, err := s.scheduler.CancelOptimizingJob(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !found && !hasController {
		writeNotFound(w, "optimizing job "+id.String()+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	s.sse.HandleStream(w, r, id)
}

// lookupJobState backs the SSE endpoint's pkg/watch.JobPoller: the live
// Scheduler cache first, falling back to the persisted record for a
// Job that has already aged out of it.
func (s *Server) lookupJobState(ctx context.Context, id string) (string, bool, error) {
	jid := jobid.ID(id)
	if snap, ok := s.scheduler.Job(jid); ok {
		return string(snap.State), job.State(snap.State).IsTerminal(), nil
	}
	rec, err := s.store.LoadJob(jid)
	if err != nil {
		return "", true, err
	}
	return string(rec.State), rec.State.IsTerminal(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func containsState(states []string, state job.State) bool {
	for _, s := range states {
		if strings.EqualFold(s, string(state)) {
			return true
		}
	}
	return false
}

func toParamString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
