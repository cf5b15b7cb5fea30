// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/pkg/streaming"
)

func TestJobPoller_EmitsOnStateChangeAndClosesOnTerminal(t *testing.T) {
	var calls int32
	lookup := func(ctx context.Context, id string) (string, bool, error) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			return "RUNNING", false, nil
		default:
			return "COMPLETED_SUCCESSFULLY", true, nil
		}
	}

	p := NewJobPoller(lookup).WithPollInterval(5 * time.Millisecond)
	events, err := p.Watch(context.Background(), "job-1")
	require.NoError(t, err)

	var seen []streaming.Event
	for ev := range events {
		seen = append(seen, ev)
	}

	require.GreaterOrEqual(t, len(seen), 2)
	require.Equal(t, "state_change", seen[0].Type)
	last := seen[len(seen)-1]
	require.Equal(t, map[string]string{"id": "job-1", "state": "COMPLETED_SUCCESSFULLY"}, last.Data)
}

func TestJobPoller_LookupErrorEmitsErrorEventAndCloses(t *testing.T) {
	lookup := func(ctx context.Context, id string) (string, bool, error) {
		return "", false, context.DeadlineExceeded
	}

	p := NewJobPoller(lookup).WithPollInterval(5 * time.Millisecond)
	events, err := p.Watch(context.Background(), "job-1")
	require.NoError(t, err)

	ev, ok := <-events
	require.True(t, ok)
	require.Equal(t, "error", ev.Type)

	_, ok = <-events
	require.False(t, ok)
}

func TestJobPoller_ContextCancelClosesChannel(t *testing.T) {
	lookup := func(ctx context.Context, id string) (string, bool, error) {
		return "RUNNING", false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := NewJobPoller(lookup).WithPollInterval(5 * time.Millisecond)
	events, err := p.Watch(ctx, "job-1")
	require.NoError(t, err)

	<-events
	cancel()

	select {
	case _, ok := <-events:
		_ = ok
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
