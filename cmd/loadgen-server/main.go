// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command loadgen-server runs the coordinator process from
// SPEC_FULL.md §4: the worker accept listener, the Scheduler's
// admission loop, and the admin API, all behind one LOADGEN_LISTEN_ADDR.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jontk/loadgen/internal/adminapi"
	"github.com/jontk/loadgen/internal/coordinator"
	"github.com/jontk/loadgen/internal/notify"
	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/internal/scheduler"
	"github.com/jontk/loadgen/internal/store"
	"github.com/jontk/loadgen/internal/workerconn"
	"github.com/jontk/loadgen/internal/workload"
	"github.com/jontk/loadgen/pkg/config"
	"github.com/jontk/loadgen/pkg/logging"
	"github.com/jontk/loadgen/pkg/metrics"
)

func main() {
	cfg := config.NewDefaultServerConfig()
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

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	registry := workload.NewRegistry(logger)
	registry.Register("net-throughput", workload.NewNetThroughput)
	registry.Register("ldap-replay", workload.NewLDAPReplay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WorkloadDir != "" {
		if err := registry.WatchDir(ctx, cfg.WorkloadDir); err != nil {
			logger.Warn("workload override directory not watched", "dir", cfg.WorkloadDir, "error", err.Error())
		}
	}

	coord := coordinator.New(cfg.DispatchPerSecond, cfg.DispatchBurst, logger)
	sched := scheduler.New(coord, st, cfg.AdmissionSpec, logger)

	workerSrv := workerconn.NewServer(coord, sched.HandleWorkerResult, logger)

	var notifier optimizing.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTP(notify.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		notifier = notify.NewLog(logger)
	}

	optimizingCron := cron.New()
	optimizingCron.Start()
	defer optimizingCron.Stop()

	adminSrv := adminapi.NewServer(adminapi.Options{
		Scheduler: sched,
		Store:     st,
		Registry:  registry,
		Notifier:  notifier,
		Cron:      optimizingCron,
		Logger:    logger,
		Metrics:   metrics.NewInMemoryCollector(),
		AuthToken: cfg.WorkerAuthToken,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws/worker", workerSrv)
	mux.Handle("/", adminSrv.Handler())

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	sched.Start()
	defer sched.Stop()

	go func() {
		logger.Info("loadgen-server listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("loadgen-server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err.Error())
	}
}

func fatal(err error) {
	logging.NewLogger(logging.DefaultConfig()).Error("loadgen-server failed to start", "error", err.Error())
	os.Exit(1)
}
