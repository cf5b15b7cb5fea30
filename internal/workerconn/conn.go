// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// CompletionHandler is invoked for every JobCompleted frame a worker
// sends; the Result carries only the sending worker's ID, by which the
// caller routes it to the owning Job.
type CompletionHandler func(job.Result)

// WorkerConn is a job.Dispatcher backed by one gorilla/websocket
// connection to a worker process. Writes are serialized by writeMu;
// request/response correlation for JobRequest/JobControl acks is done
// by RequestID through the pending map.
type WorkerConn struct {
	id        string
	isMonitor bool
	conn      *websocket.Conn
	logger    logging.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	onCompleted CompletionHandler
}

// New wraps an already-upgraded websocket connection, following the
// handshake frame the worker sends immediately after connecting.
func New(conn *websocket.Conn, workerID string, isMonitor bool, onCompleted CompletionHandler, logger logging.Logger) *WorkerConn {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WorkerConn{
		id:          workerID,
		isMonitor:   isMonitor,
		conn:        conn,
		logger:      logger,
		pending:     make(map[string]chan Frame),
		onCompleted: onCompleted,
	}
}

func (c *WorkerConn) WorkerID() string { return c.id }
func (c *WorkerConn) IsMonitor() bool  { return c.isMonitor }

// ReadLoop blocks reading frames until the connection closes or ctx is
// cancelled; callers should run it in its own goroutine immediately
// after New. Ack frames are routed to the waiting Dispatch/Control
// call; JobCompleted frames are routed to onCompleted.
func (c *WorkerConn) ReadLoop(ctx context.Context) {
	defer c.closePending()
	for {
		if ctx.Err() != nil {
			return
		}
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("worker connection closed unexpectedly", "worker_id", c.id, "error", err.Error())
			}
			return
		}

		switch frame.Type {
		case FrameAck:
			c.deliver(frame)
		case FrameJobCompleted:
			c.handleCompleted(frame)
		default:
			c.logger.Warn("unexpected frame type from worker", "worker_id", c.id, "type", string(frame.Type))
		}
	}
}

func (c *WorkerConn) handleCompleted(frame Frame) {
	if c.onCompleted == nil {
		return
	}
	trackers := make([]stats.Tracker, 0, len(frame.Trackers))
	for _, dto := range frame.Trackers {
		tr, err := DecodeTracker(dto, c.id, "")
		if err != nil {
			c.logger.Warn("failed to decode tracker from worker", "worker_id", c.id, "display_name", dto.DisplayName, "error", err.Error())
			continue
		}
		trackers = append(trackers, tr)
	}
	c.onCompleted(job.Result{
		WorkerID: c.id,
		State:    jobStateFromWire(frame.FinalState),
		Trackers: trackers,
	})
}

func (c *WorkerConn) deliver(frame Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.RequestID]
	if ok {
		delete(c.pending, frame.RequestID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- frame
	}
}

func (c *WorkerConn) closePending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Dispatch sends a JobRequest frame and waits for the worker's ack,
// translating a non-success response code into a *errors.WorkerError.
func (c *WorkerConn) Dispatch(ctx context.Context, req job.Request) error {
	frame := Frame{
		Type:                  FrameJobRequest,
		RequestID:             uuid.NewString(),
		JobID:                 req.JobID.String(),
		WorkloadClassName:     req.WorkloadName,
		Params:                req.Parameters,
		NumThreads:            req.ThreadsPerClient,
		CollectionIntervalSec: 1,
		DurationSec:           int64(req.Duration.Seconds()),
	}
	if req.StopTime != nil {
		frame.StopTimeMs = req.StopTime.UnixMilli()
	}

	ack, err := c.roundTrip(ctx, frame)
	if err != nil {
		return err
	}
	return responseCodeToError(c.id, ack.ResponseCode, ack.ResponseMessage)
}

// Control sends a JobControl frame and waits for the worker's ack.
func (c *WorkerConn) Control(ctx context.Context, signal job.ControlSignal) error {
	op := ControlOpStop
	if signal == job.ControlCancel {
		op = ControlOpCancel
	}
	frame := Frame{
		Type:      FrameJobControl,
		RequestID: uuid.NewString(),
		Op:        op,
	}
	ack, err := c.roundTrip(ctx, frame)
	if err != nil {
		return err
	}
	return responseCodeToError(c.id, ack.ResponseCode, ack.ResponseMessage)
}

func (c *WorkerConn) roundTrip(ctx context.Context, frame Frame) (Frame, error) {
	ch := make(chan Frame, 1)
	c.pendingMu.Lock()
	c.pending[frame.RequestID] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, frame.RequestID)
		c.pendingMu.Unlock()
		return Frame{}, errors.NewWorkerError(errors.ErrorCodeWorkerDialFailed, "failed to write frame to worker", c.id, err)
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return Frame{}, errors.NewWorkerError(errors.ErrorCodeWorkerLocalError, "worker connection closed before ack", c.id, nil)
		}
		return ack, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close closes the underlying connection.
func (c *WorkerConn) Close() error { return c.conn.Close() }

func responseCodeToError(workerID string, code ResponseCode, message string) error {
	switch code {
	case ResponseSuccess, "":
		return nil
	case ResponseClassNotFound:
		return errors.NewWorkerError(errors.ErrorCodeClassNotFound, message, workerID, nil)
	case ResponseClassNotValid:
		return errors.NewWorkerError(errors.ErrorCodeClassNotValid, message, workerID, nil)
	case ResponseJobCreationFailure:
		return errors.NewWorkerError(errors.ErrorCodeJobCreationFailed, message, workerID, nil)
	case ResponseNoSuchJob:
		return errors.NewWorkerError(errors.ErrorCodeNoSuchJob, message, workerID, nil)
	default:
		return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError, message, workerID, nil)
	}
}

func jobStateFromWire(s string) job.State { return job.State(s) }
