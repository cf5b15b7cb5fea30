// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package adminapi implements the thin external HTTP surface from
// SPEC_FULL.md §4.9: submit Job, submit Optimizing Job, get/list Jobs,
// cancel Job/Optimizing Job, and a live-progress stream. It carries no
// business logic of its own — every handler does nothing more than
// validate its request shape and call into internal/scheduler or
// internal/store, the same "thin handler, fat service" split the
// teacher's tests/mocks server uses gorilla/mux for.
package adminapi

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/store"
	"github.com/jontk/loadgen/internal/workload"
	"github.com/jontk/loadgen/pkg/logging"
	"github.com/jontk/loadgen/pkg/metrics"
	"github.com/jontk/loadgen/pkg/middleware"
	"github.com/jontk/loadgen/pkg/streaming"
	"github.com/jontk/loadgen/pkg/watch"
)

// DefaultRequestTimeout bounds every admin API request except the
// streaming endpoint, which opts out entirely.
const DefaultRequestTimeout = 30 * time.Second

// Options configures a Server. Scheduler, Store, Registry, and Notifier
// are required; everything else has a workable default.
type Options struct {
	Scheduler      *scheduler.Scheduler
	Store          store.Store
	Registry       *workload.Registry
	Notifier       optimizing.Notifier
	Cron           *cron.Cron
	Logger         logging.Logger
	Metrics        metrics.Collector
	AuthToken      string
	RequestTimeout time.Duration
}

// Server wires Options into an http.Handler. It holds no state of its
// own beyond the live Optimizing Job controllers it must keep a handle
// on for cancellation and persistence — everything else is delegated.
type Server struct {
	scheduler *scheduler.Scheduler
	store     store.Store
	registry  *workload.Registry
	notifier  optimizing.Notifier
	cron      *cron.Cron
	logger    logging.Logger
	metrics   metrics.Collector
	authToken string
	timeout   time.Duration

	controllersMu sync.Mutex
	controllers   map[jobid.ID]*optimizing.Controller

	idCounter int64

	sse *streaming.SSEServer
}

// NewServer constructs a Server from Options, filling in defaults for
// any zero-valued optional field.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpCollector{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		scheduler:   opts.Scheduler,
		store:       opts.Store,
		registry:    opts.Registry,
		notifier:    opts.Notifier,
		cron:        opts.Cron,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		authToken:   opts.AuthToken,
		timeout:     opts.RequestTimeout,
		controllers: make(map[jobid.ID]*optimizing.Controller),
	}
	s.sse = streaming.NewSSEServer(watch.NewJobPoller(s.lookupJobState))
	return s
}

// Handler builds the routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.Handle("/jobs", s.timed(s.handleSubmitJob)).Methods(http.MethodPost)
	api.Handle("/jobs", s.timed(s.handleListJobs)).Methods(http.MethodGet)
	api.Handle("/jobs/{job_id}", s.timed(s.handleGetJob)).Methods(http.MethodGet)
	api.Handle("/jobs/{job_id}", s.timed(s.handleCancelJob)).Methods(http.MethodDelete)
	api.Handle("/jobs/{job_id}/stream", middleware.WithTimeout(0)(http.HandlerFunc(s.handleStreamJob))).Methods(http.MethodGet)

	api.Handle("/optimizing-jobs", s.timed(s.handleSubmitOptimizingJob)).Methods(http.MethodPost)
	api.Handle("/optimizing-jobs/{optimizing_job_id}", s.timed(s.handleCancelOptimizingJob)).Methods(http.MethodDelete)

	chain := middleware.Chain(
		middleware.WithRecovery(s.logger),
		middleware.WithLogging(s.logger),
		middleware.WithMetrics(s.metrics),
		middleware.WithAuth(s.authToken),
	)
	return chain(router)
}

func (s *Server) timed(h http.HandlerFunc) http.Handler {
	return middleware.WithTimeout(s.timeout)(h)
}

func (s *Server) nextJobID() jobid.ID {
	n := atomic.AddInt64(&s.idCounter, 1)
	return jobid.New(time.Now(), int(n))
}
