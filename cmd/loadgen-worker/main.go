// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command loadgen-worker dials a coordinator's /ws/worker endpoint and
// runs whatever workloads it dispatches, per SPEC_FULL.md §4.1/§4.3.
// It reconnects, following pkg/retry's backoff, for as long as the
// process runs.
package main

import (
	"context"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/jontk/loadgen/internal/workerconn"
	"github.com/jontk/loadgen/internal/workerengine"
	"github.com/jontk/loadgen/internal/workload"
	"github.com/jontk/loadgen/pkg/auth"
	"github.com/jontk/loadgen/pkg/config"
	"github.com/jontk/loadgen/pkg/logging"
	"github.com/jontk/loadgen/pkg/retry"
)

func main() {
	cfg := config.NewDefaultWorkerConfig()
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{
		Level:   logLevel,
		Format:  logging.FormatJSON,
		Output:  os.Stdout,
		Version: "dev",
	})

	registry := workload.NewRegistry(logger)
	registry.Register("net-throughput", workload.NewNetThroughput)
	registry.Register("ldap-replay", workload.NewLDAPReplay)

	engine := workerengine.New(registry, cfg.WorkerID, logger)

	var authProvider auth.Provider
	if cfg.AuthToken != "" {
		authProvider = auth.NewTokenAuth(cfg.AuthToken)
	} else {
		authProvider = auth.NewNoAuth()
	}

	// MaxReconnects <= 0 means retry indefinitely; HTTPExponentialBackoff
	// has no native "forever" mode, so a very large ceiling stands in
	// for one.
	maxRetries := cfg.MaxReconnects
	if maxRetries <= 0 {
		maxRetries = math.MaxInt32
	}
	retryPolicy := retry.NewHTTPExponentialBackoff().
		WithMaxRetries(maxRetries).
		WithMinWaitTime(cfg.ReconnectMinWait).
		WithMaxWaitTime(cfg.ReconnectMaxWait)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("loadgen-worker starting", "worker_id", cfg.WorkerID, "coordinator", cfg.CoordinatorURL)
	err := workerconn.Dial(ctx, workerconn.DialOptions{
		URL:       cfg.CoordinatorURL,
		WorkerID:  cfg.WorkerID,
		IsMonitor: cfg.IsMonitor,
		Auth:      authProvider,
		Retry:     retryPolicy,
		Executor:  engine,
		Logger:    logger,
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("loadgen-worker exited", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("loadgen-worker shut down")
}

func fatal(err error) {
	logging.NewLogger(logging.DefaultConfig()).Error("loadgen-worker failed to start", "error", err.Error())
	os.Exit(1)
}
