// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/pkg/logging"
)

// Executor runs a dispatched job locally on a worker process and
// reports its outcome. internal/workerengine supplies the concrete
// implementation; workerconn depends only on this interface, the same
// way internal/job depends only on Dispatcher to avoid an import cycle
// with the package that actually drives a workload's lifecycle.
type Executor interface {
	Execute(ctx context.Context, req job.Request) job.Result
	Stop(jobID string, cancel bool)
}

// WorkerEndpoint runs a worker process's side of the wire protocol —
// the mirror image of Server/WorkerConn's coordinator-side Dispatch/
// Control: it reads the JobRequest/JobControl frames the coordinator
// sends, acks each one, and hands JobRequest off to an Executor,
// writing the resulting JobCompleted frame back once the job finishes.
type WorkerEndpoint struct {
	conn     *websocket.Conn
	executor Executor
	workerID string
	logger   logging.Logger
	writeMu  sync.Mutex
}

// NewWorkerEndpoint wraps an already-upgraded connection. Used by Dial
// once a DialOptions.Executor is supplied.
func NewWorkerEndpoint(conn *websocket.Conn, workerID string, executor Executor, logger logging.Logger) *WorkerEndpoint {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WorkerEndpoint{conn: conn, executor: executor, workerID: workerID, logger: logger}
}

// Serve blocks reading frames until the connection closes or ctx is
// cancelled. Each JobRequest runs in its own goroutine so a
// long-running job never blocks the read loop from acking a
// concurrent JobControl for a different job.
func (w *WorkerEndpoint) Serve(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		var frame Frame
		if err := w.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.logger.Warn("coordinator connection closed unexpectedly", "worker_id", w.workerID, "error", err.Error())
			}
			return
		}

		switch frame.Type {
		case FrameJobRequest:
			go w.handleJobRequest(ctx, frame)
		case FrameJobControl:
			w.handleJobControl(frame)
		default:
			w.logger.Warn("unexpected frame type from coordinator", "worker_id", w.workerID, "type", string(frame.Type))
		}
	}
}

func (w *WorkerEndpoint) writeFrame(frame Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(frame)
}

func (w *WorkerEndpoint) handleJobRequest(ctx context.Context, frame Frame) {
	req := decodeJobRequest(frame)
	if err := w.writeFrame(Frame{Type: FrameAck, RequestID: frame.RequestID, ResponseCode: ResponseSuccess}); err != nil {
		w.logger.Warn("failed to ack job request", "worker_id", w.workerID, "job_id", frame.JobID, "error", err.Error())
		return
	}

	result := w.executor.Execute(ctx, req)

	trackers := make([]TrackerDTO, 0, len(result.Trackers))
	for _, tr := range result.Trackers {
		dto, err := EncodeTracker(tr)
		if err != nil {
			w.logger.Warn("failed to encode tracker for wire", "worker_id", w.workerID, "job_id", frame.JobID, "error", err.Error())
			continue
		}
		trackers = append(trackers, dto)
	}

	completed := Frame{
		Type:       FrameJobCompleted,
		JobID:      frame.JobID,
		FinalState: string(result.State),
		Trackers:   trackers,
	}
	if result.Err != nil {
		completed.LogMessages = []string{result.Err.Error()}
	}
	if err := w.writeFrame(completed); err != nil {
		w.logger.Warn("failed to report job completion to coordinator", "worker_id", w.workerID, "job_id", frame.JobID, "error", err.Error())
	}
}

func (w *WorkerEndpoint) handleJobControl(frame Frame) {
	w.executor.Stop(frame.JobID, frame.Op == ControlOpCancel)
	if err := w.writeFrame(Frame{Type: FrameAck, RequestID: frame.RequestID, ResponseCode: ResponseSuccess}); err != nil {
		w.logger.Warn("failed to ack job control", "worker_id", w.workerID, "job_id", frame.JobID, "error", err.Error())
	}
}

func decodeJobRequest(frame Frame) job.Request {
	req := job.Request{
		JobID:            jobid.ID(frame.JobID),
		WorkloadName:     frame.WorkloadClassName,
		ThreadsPerClient: frame.NumThreads,
		Parameters:       frame.Params,
		Duration:         time.Duration(frame.DurationSec) * time.Second,
	}
	if frame.StopTimeMs > 0 {
		t := time.UnixMilli(frame.StopTimeMs)
		req.StopTime = &t
	}
	return req
}
