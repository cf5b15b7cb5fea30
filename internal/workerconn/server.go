// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/versioning"
	"github.com/jontk/loadgen/pkg/logging"
)

// handshakeTimeout bounds how long the server waits for a worker's
// initial HANDSHAKE frame before giving up on the connection.
const handshakeTimeout = 10 * time.Second

// WorkerRegistry is the subset of internal/coordinator.Coordinator the
// accept handler needs. Declared here, not imported from coordinator,
// so workerconn's test suite can exercise the handshake against a
// fake without pulling in the coordinator's pool-lock machinery.
type WorkerRegistry interface {
	RegisterWorker(d job.Dispatcher, isMonitor bool)
	UnregisterWorker(workerID string)
}

// Server accepts worker connections over a single websocket endpoint,
// reads the handshake frame each worker sends on connect, and
// registers the resulting WorkerConn with a WorkerRegistry. It owns no
// HTTP routing of its own; callers mount ServeHTTP wherever the
// coordinator's admin surface exposes it (conventionally /ws/worker).
type Server struct {
	upgrader websocket.Upgrader
	registry WorkerRegistry
	onResult CompletionHandler
	logger   logging.Logger
}

// NewServer returns a Server registering accepted workers with
// registry and routing every JobCompleted frame through onResult.
func NewServer(registry WorkerRegistry, onResult CompletionHandler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: registry,
		onResult: onResult,
		logger:   logger,
	}
}

// ServeHTTP upgrades the connection, waits for the worker's handshake,
// and hands the resulting WorkerConn off to the registry. It blocks
// running the connection's read loop until the worker disconnects, at
// which point the worker is unregistered.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error(), "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var handshake Frame
	if err := conn.ReadJSON(&handshake); err != nil || handshake.Type != FrameHandshake {
		s.logger.Warn("worker did not send a valid handshake", "remote_addr", r.RemoteAddr)
		return
	}
	if handshake.ProtocolVersion != "" {
		workerVersion, err := versioning.Parse(handshake.ProtocolVersion)
		if err != nil || !versioning.Current.IsCompatibleWith(workerVersion) {
			s.logger.Warn("worker protocol version incompatible",
				"worker_id", handshake.WorkerID, "worker_version", handshake.ProtocolVersion, "coordinator_version", versioning.Current.String())
			return
		}
	}
	conn.SetReadDeadline(time.Time{})

	wc := New(conn, handshake.WorkerID, handshake.IsMonitor, s.onResult, s.logger)
	s.registry.RegisterWorker(wc, handshake.IsMonitor)
	defer s.registry.UnregisterWorker(wc.WorkerID())

	s.logger.Info("worker connected", "worker_id", wc.WorkerID(), "monitor", wc.IsMonitor())
	wc.ReadLoop(r.Context())
	s.logger.Info("worker disconnected", "worker_id", wc.WorkerID())
}
