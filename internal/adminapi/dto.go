// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"time"

	"github.com/jontk/loadgen/internal/algorithm"
	"github.com/jontk/loadgen/internal/job"
)

// submitJobRequest is the wire shape of a POST /jobs body.
type submitJobRequest struct {
	WorkloadName            string         `json:"workloadName"`
	NumClients              int            `json:"numClients"`
	ThreadsPerClient        int            `json:"threadsPerClient"`
	Group                   string         `json:"group,omitempty"`
	Folder                  string         `json:"folder,omitempty"`
	Description             string         `json:"description,omitempty"`
	StartTime               *time.Time     `json:"startTime,omitempty"`
	ScheduledDuration       string         `json:"scheduledDuration,omitempty"`
	RequestedMonitorClients int            `json:"requestedMonitorClients,omitempty"`
	MonitorIfAvailable      bool           `json:"monitorIfAvailable,omitempty"`
	WaitForClients          bool           `json:"waitForClients,omitempty"`
	ThreadStartupDelay      string         `json:"threadStartupDelay,omitempty"`
	Dependencies            []string       `json:"dependencies,omitempty"`
	NotifyAddresses         []string       `json:"notifyAddresses,omitempty"`
	CollectionInterval      string         `json:"collectionInterval,omitempty"`
	Comments                string         `json:"comments,omitempty"`
	Parameters              map[string]any `json:"parameters,omitempty"`
}

// submitOptimizingJobRequest is the wire shape of a POST /optimizing-jobs body.
type submitOptimizingJobRequest struct {
	WorkloadName           string           `json:"workloadName"`
	NumClients             int              `json:"numClients"`
	MinThreads             int              `json:"minThreads"`
	MaxThreads             int              `json:"maxThreads,omitempty"`
	ThreadIncrement        int              `json:"threadIncrement"`
	ReRunBest              bool             `json:"reRunBest,omitempty"`
	ReRunDuration          string           `json:"reRunDuration,omitempty"`
	DelayBetweenIterations string           `json:"delayBetweenIterations,omitempty"`
	MaxNonImproving        int              `json:"maxNonImproving,omitempty"`
	Description            string           `json:"description,omitempty"`
	NotifyAddresses        []string         `json:"notifyAddresses,omitempty"`
	AlgorithmName          string           `json:"algorithmName"`
	AlgorithmParams        algorithm.Params `json:"algorithmParams,omitempty"`
}

// jobResponse is a Job's read-model, shared by get-one and list.
type jobResponse struct {
	ID               string    `json:"id"`
	WorkloadName     string    `json:"workloadName,omitempty"`
	OptimizingJobID  string    `json:"optimizingJobId,omitempty"`
	Group            string    `json:"group,omitempty"`
	State            string    `json:"state"`
	NumClients       int       `json:"numClients,omitempty"`
	ThreadsPerClient int       `json:"threadsPerClient,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
	StoppedAt        time.Time `json:"stoppedAt,omitempty"`
}

func snapshotToResponse(snap job.Snapshot) jobResponse {
	return jobResponse{
		ID:               snap.ID,
		WorkloadName:     snap.WorkloadName,
		State:            string(snap.State),
		NumClients:       snap.NumClients,
		ThreadsPerClient: snap.ThreadsPerClient,
		StartedAt:        snap.StartedAt,
		StoppedAt:        snap.StoppedAt,
	}
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
