// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/internal/job"
)

type fakeRegistry struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
}

func (r *fakeRegistry) RegisterWorker(d job.Dispatcher, isMonitor bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, d.WorkerID())
}

func (r *fakeRegistry) UnregisterWorker(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, workerID)
}

func (r *fakeRegistry) snapshot() (registered, unregistered []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...), append([]string(nil), r.unregistered...)
}

func TestServer_RegistersWorkerOnHandshake(t *testing.T) {
	registry := &fakeRegistry{}
	srv := NewServer(registry, nil, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameHandshake, WorkerID: "worker-7", IsMonitor: true}))

	require.Eventually(t, func() bool {
		registered, _ := registry.snapshot()
		return len(registered) == 1 && registered[0] == "worker-7"
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		_, unregistered := registry.snapshot()
		return len(unregistered) == 1 && unregistered[0] == "worker-7"
	}, time.Second, 10*time.Millisecond)
}

func TestServer_RejectsMissingHandshake(t *testing.T) {
	registry := &fakeRegistry{}
	srv := NewServer(registry, nil, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameJobRequest}))

	require.Never(t, func() bool {
		registered, _ := registry.snapshot()
		return len(registered) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}
