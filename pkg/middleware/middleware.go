// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package middleware provides the http.Handler chain internal/adminapi
// wraps its gorilla/mux router in: panic recovery, structured request
// logging, metrics collection and bearer-token auth, plus per-route
// request timeouts. It also provides a circuit breaker, which
// internal/adminapi does not install. It is the server-side counterpart
// of the teacher's client-side http.RoundTripper chain, same
// Chain/compose shape.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jontk/loadgen/pkg/logging"
	"github.com/jontk/loadgen/pkg/metrics"
)

// Middleware wraps an http.Handler with another.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// statusRecorder captures the status code a handler writes so logging
// and metrics middleware can report it after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WithLogging logs every admin API request at Info, or Error if the
// handler recorded a 5xx status.
func WithLogging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqLogger := logging.LogAPICall(logger, r.Method, r.URL.Path, "remote_addr", r.RemoteAddr)
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			fields := []any{"status_code", rec.status, "duration_ms", duration.Milliseconds()}
			if rec.status >= 500 {
				reqLogger.Error("request completed with server error", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}
		})
	}
}

// WithRecovery turns a panic inside a handler into a 500 response
// instead of taking down the admin API's listener goroutine.
func WithRecovery(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.LogError(logger, fmt.Errorf("panic: %v", rec), "request_handler",
						"method", r.Method, "path", r.URL.Path)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithMetrics records the request/response pair in collector.
func WithMetrics(collector metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			collector.RecordRequest(r.Method, r.URL.Path)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			collector.RecordResponse(r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

// WithTimeout bounds how long a request's context runs, unless it
// already carries an earlier deadline (the SSE streaming endpoint
// passes 0 to opt out entirely).
func WithTimeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAuth rejects requests missing a valid bearer token when token is
// non-empty; an empty token disables auth entirely (single-tenant or
// trusted-network deployments).
func WithAuth(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithCircuitBreaker answers every request with 503 once threshold
// consecutive responses from next have been 5xx, until timeout passes
// since the last failure; any non-5xx response resets the count.
func WithCircuitBreaker(threshold int, timeout time.Duration) Middleware {
	breaker := &circuitBreaker{threshold: threshold, timeout: timeout}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !breaker.Allow() {
				http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= 500 {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		})
	}
}

type circuitBreaker struct {
	threshold int
	timeout   time.Duration
	failures  int
	lastFail  time.Time
}

func (cb *circuitBreaker) Allow() bool {
	if cb.failures < cb.threshold {
		return true
	}
	return time.Since(cb.lastFail) > cb.timeout
}

func (cb *circuitBreaker) RecordFailure() {
	cb.failures++
	cb.lastFail = time.Now()
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.failures = 0
}
