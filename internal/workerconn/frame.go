// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package workerconn implements the worker protocol transport from
// SPEC_FULL.md §6 over a gorilla/websocket connection: JobRequest,
// JobControl, and worker-initiated JobCompleted frames, plus the
// response-code enum the Job start protocol interprets.
package workerconn

import "time"

// FrameType discriminates the handful of messages exchanged between
// the coordinator and a worker over one websocket connection.
type FrameType string

const (
	FrameJobRequest  FrameType = "JOB_REQUEST"
	FrameJobControl  FrameType = "JOB_CONTROL"
	FrameAck         FrameType = "ACK"
	FrameJobCompleted FrameType = "JOB_COMPLETED"
	FrameHandshake   FrameType = "HANDSHAKE"
)

// ResponseCode is the closed set of outcomes a worker reports for a
// JobRequest or JobControl.
type ResponseCode string

const (
	ResponseSuccess             ResponseCode = "SUCCESS"
	ResponseClassNotFound       ResponseCode = "CLASS_NOT_FOUND"
	ResponseClassNotValid       ResponseCode = "CLASS_NOT_VALID"
	ResponseJobCreationFailure  ResponseCode = "JOB_CREATION_FAILURE"
	ResponseLocalError          ResponseCode = "LOCAL_ERROR"
	ResponseNoSuchJob           ResponseCode = "NO_SUCH_JOB"
)

// ControlOp is the operation carried by a JobControl frame.
type ControlOp string

const (
	ControlOpStart        ControlOp = "START"
	ControlOpStop         ControlOp = "STOP"
	ControlOpStopAndWait  ControlOp = "STOP_AND_WAIT"
	ControlOpCancel       ControlOp = "CANCEL"
)

// Frame is the single wire envelope every message is encoded as.
// Fields not relevant to Type are left zero.
type Frame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`

	// Handshake
	WorkerID        string `json:"worker_id,omitempty"`
	IsMonitor       bool   `json:"is_monitor,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`

	// JobRequest
	JobID                 string         `json:"job_id,omitempty"`
	WorkloadClassName     string         `json:"workload_class_name,omitempty"`
	Params                map[string]any `json:"params,omitempty"`
	NumThreads            int            `json:"num_threads,omitempty"`
	ThreadStartupDelayMs  int64          `json:"thread_startup_delay_ms,omitempty"`
	CollectionIntervalSec int            `json:"collection_interval_sec,omitempty"`
	StartTimeMs           int64          `json:"start_time_ms,omitempty"`
	StopTimeMs            int64          `json:"stop_time_ms,omitempty"`
	DurationSec           int64          `json:"duration_sec,omitempty"`
	WorkerOrdinal         int            `json:"worker_ordinal,omitempty"`

	// JobControl
	Op ControlOp `json:"op,omitempty"`

	// Ack (response to JobRequest or JobControl)
	ResponseCode    ResponseCode `json:"response_code,omitempty"`
	ResponseMessage string       `json:"response_message,omitempty"`

	// JobCompleted
	FinalState      string       `json:"final_state,omitempty"`
	ActualStartMs   int64        `json:"actual_start_ms,omitempty"`
	ActualStopMs    int64        `json:"actual_stop_ms,omitempty"`
	ActualDuration  int64        `json:"actual_duration_ms,omitempty"`
	Trackers        []TrackerDTO `json:"trackers,omitempty"`
	LogMessages     []string     `json:"log_messages,omitempty"`
}

// TrackerDTO is the wire form of one stats.Tracker, carrying enough of
// its raw per-interval data to reconstruct the concrete variant and
// aggregate it with peers from other workers.
type TrackerDTO struct {
	DisplayName        string        `json:"display_name"`
	Variant            string        `json:"variant"`
	CollectionIntervalMs int64       `json:"collection_interval_ms"`
	Searchable         bool          `json:"searchable"`

	Counts          []int64            `json:"counts,omitempty"`           // incremental
	DurationsMs     []int64            `json:"durations_ms,omitempty"`     // duration
	SampleCounts    []int64            `json:"sample_counts,omitempty"`    // duration
	Categories      []map[string]int64 `json:"categories,omitempty"`       // categorical
	Samples         [][]int64          `json:"samples,omitempty"`          // integer-valued
	ComponentOrder  []string           `json:"component_order,omitempty"`  // stacked
	Components      map[string][]int64 `json:"components,omitempty"`       // stacked
	ComponentCounts map[string][]int64 `json:"component_counts,omitempty"` // stacked
}

func durationFromMs(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
func msFromDuration(d time.Duration) int64  { return d.Milliseconds() }
