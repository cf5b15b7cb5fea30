// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/jontk/loadgen/internal/common"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// NetThroughput repeatedly writes fixed-size payloads to a TCP target,
// tracking bytes sent per second and per-write latency.
type NetThroughput struct {
	target             string
	payloadSize        int
	collectionInterval time.Duration

	bytesSent *stats.Incremental
	writeTime *stats.Duration

	conn          net.Conn
	stopRequested atomic.Bool
}

// NewNetThroughput is the Factory registered under the
// "net-throughput" class name.
func NewNetThroughput() Capability { return &NetThroughput{} }

func (w *NetThroughput) JobName() string          { return "net-throughput" }
func (w *NetThroughput) ShortDescription() string { return "Sustained TCP write throughput" }
func (w *NetThroughput) LongDescription() string {
	return "Opens one TCP connection per thread to the target and writes fixed-size payloads " +
		"back to back, reporting bytes-per-second and per-write latency."
}
func (w *NetThroughput) CategoryName() string { return "network" }

func (w *NetThroughput) ParameterStubs() ParameterList {
	return ParameterList{
		{Name: "target", DisplayName: "Target host:port", Required: true},
		{Name: "payloadBytes", DisplayName: "Payload size, e.g. 4096 or 4K", Required: false, DefaultValue: "4096"},
	}
}

func (w *NetThroughput) ClientSideParameterStubs() ParameterList { return nil }

func (w *NetThroughput) StatTrackerStubs() []TrackerStub {
	return []TrackerStub{
		{DisplayName: "bytes-sent", Variant: VariantIncremental, Searchable: true},
		{DisplayName: "write-latency", Variant: VariantDuration, Searchable: true},
	}
}

func (w *NetThroughput) OverrideNumClients() int        { return 0 }
func (w *NetThroughput) OverrideThreadsPerClient() int  { return 0 }
func (w *NetThroughput) OverrideCollectionInterval() int { return 0 }

func (w *NetThroughput) ValidateJobInfo(info JobInfo) error {
	return ValidateParameters(w.ParameterStubs(), info.Parameters)
}

func (w *NetThroughput) ProvidesParameterTest() bool { return false }

func (w *NetThroughput) TestJobParameters(ctx context.Context, info JobInfo) (TestResult, error) {
	return TestResult{Passed: true}, nil
}

func (w *NetThroughput) InitializeJob(ctx context.Context, info JobInfo) error {
	target, ok := info.Parameters["target"].(string)
	if !ok || target == "" {
		return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
			"target is required", "target", info.Parameters["target"], nil)
	}
	w.target = target
	w.payloadSize = 4096
	switch size := info.Parameters["payloadBytes"].(type) {
	case int:
		if size > 0 {
			w.payloadSize = size
		}
	case string:
		if size != "" {
			bytes, err := common.ParseMemoryToBytes(size)
			if err != nil {
				return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
					"payloadBytes is not a valid size", "payloadBytes", size, err)
			}
			w.payloadSize = int(bytes)
		}
	}
	w.collectionInterval = time.Second
	return nil
}

func (w *NetThroughput) InitializeClient(ctx context.Context, clientID string) error { return nil }

func (w *NetThroughput) InitializeThread(ctx context.Context, clientID, threadID string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", w.target)
	if err != nil {
		return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError, "failed to dial target", "", err)
	}
	w.conn = conn
	w.bytesSent = stats.NewIncremental(clientID, threadID, "bytes-sent", w.collectionInterval, true)
	w.writeTime = stats.NewDuration(clientID, threadID, "write-latency", w.collectionInterval, true)
	return nil
}

func (w *NetThroughput) RunJob(ctx context.Context) error {
	payload := make([]byte, w.payloadSize)
	startedAt := time.Now()
	for !w.ShouldStop() {
		interval := int(time.Since(startedAt) / w.collectionInterval)
		writeStart := time.Now()
		n, err := w.conn.Write(payload)
		if err != nil {
			return errors.NewWorkerError(errors.ErrorCodeWorkerLocalError, "write failed", "", err)
		}
		w.writeTime.Record(interval, time.Since(writeStart))
		w.bytesSent.Increment(interval, int64(n))
	}
	return nil
}

func (w *NetThroughput) StatTrackers() []stats.Tracker {
	return []stats.Tracker{w.bytesSent, w.writeTime}
}

func (w *NetThroughput) FinalizeThread(ctx context.Context) error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
func (w *NetThroughput) FinalizeClient(ctx context.Context) error { return nil }
func (w *NetThroughput) FinalizeJob(ctx context.Context) error    { return nil }

func (w *NetThroughput) ShouldStop() bool { return w.stopRequested.Load() }
func (w *NetThroughput) StopJob()         { w.stopRequested.Store(true) }

func (w *NetThroughput) StopAndWait(ctx context.Context) error {
	w.StopJob()
	return nil
}

func (w *NetThroughput) DestroyThread() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
