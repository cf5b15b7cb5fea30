// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jontk/loadgen/internal/versioning"
	"github.com/jontk/loadgen/pkg/auth"
	"github.com/jontk/loadgen/pkg/logging"
	"github.com/jontk/loadgen/pkg/retry"
)

// DialOptions configures a worker's outbound connection to the
// coordinator's /ws/worker endpoint.
type DialOptions struct {
	// URL is the coordinator's worker websocket endpoint, e.g.
	// "ws://coordinator:8080/ws/worker".
	URL string

	WorkerID  string
	IsMonitor bool

	// Auth attaches worker authentication to the dial request. Defaults
	// to auth.NewNoAuth() when nil.
	Auth auth.Provider

	// Retry drives the reconnect loop on dial failure. Defaults to
	// retry.NewNoRetry() when nil, which dials exactly once.
	Retry retry.Policy

	OnCompleted CompletionHandler

	// Executor, when set, runs this worker's side of the protocol: the
	// connection serves JobRequest/JobControl frames from the
	// coordinator via a WorkerEndpoint instead of the coordinator-side
	// WorkerConn. This is how cmd/loadgen-worker dials in; leaving it
	// nil keeps the coordinator-side read loop, which workerconn's own
	// tests dial against.
	Executor Executor

	Logger logging.Logger
}

// Dial connects to the coordinator, following Retry's policy on
// failure, and blocks sending a HANDSHAKE frame and running the
// resulting WorkerConn's read loop until the connection drops or ctx
// is cancelled. A drop is handed to Retry as a failure at attempt -1,
// so a policy that retries it starts a fresh series of reconnect
// attempts; with the default NoRetry policy Dial returns after the
// first drop.
func Dial(ctx context.Context, opts DialOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	authProvider := opts.Auth
	if authProvider == nil {
		authProvider = auth.NewNoAuth()
	}
	retryPolicy := opts.Retry
	if retryPolicy == nil {
		retryPolicy = retry.NewNoRetry()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		conn, resp, err := dialOnce(ctx, opts.URL, authProvider)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			lastErr = nil
			if hsErr := handshakeAndServe(ctx, conn, opts, logger); hsErr != nil {
				logger.Warn("worker connection ended", "error", hsErr.Error())
			}
			// A dropped connection after a successful handshake is
			// itself cause to reconnect from attempt 0.
			attempt = -1
			lastErr = errRetryableDisconnect
		} else {
			lastErr = err
			logger.Warn("dial to coordinator failed", "url", opts.URL, "attempt", attempt, "error", err.Error())
		}

		if !retryPolicy.ShouldRetry(ctx, resp, lastErr, attempt) {
			return lastErr
		}
		wait := retryPolicy.WaitTime(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

var errRetryableDisconnect = &disconnectError{}

type disconnectError struct{}

func (*disconnectError) Error() string { return "worker connection dropped" }

func dialOnce(ctx context.Context, url string, authProvider auth.Provider) (*websocket.Conn, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := authProvider.Authenticate(ctx, req); err != nil {
		return nil, nil, err
	}
	return websocket.DefaultDialer.DialContext(ctx, url, req.Header)
}

func handshakeAndServe(ctx context.Context, conn *websocket.Conn, opts DialOptions, logger logging.Logger) error {
	defer conn.Close()

	handshake := Frame{
		Type:            FrameHandshake,
		WorkerID:        opts.WorkerID,
		IsMonitor:       opts.IsMonitor,
		ProtocolVersion: versioning.Current.String(),
	}
	if err := conn.WriteJSON(handshake); err != nil {
		return err
	}

	logger.Info("connected to coordinator", "worker_id", opts.WorkerID, "monitor", opts.IsMonitor)
	if opts.Executor != nil {
		NewWorkerEndpoint(conn, opts.WorkerID, opts.Executor, logger).Serve(ctx)
	} else {
		New(conn, opts.WorkerID, opts.IsMonitor, opts.OnCompleted, logger).ReadLoop(ctx)
	}
	logger.Info("disconnected from coordinator", "worker_id", opts.WorkerID)
	return nil
}
