// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"testing"
	"time"

	smtpmock "github.com/mocktools/go-smtp-mock/v2"
	"github.com/stretchr/testify/require"

	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/optimizing"
)

func testNotification() optimizing.Notification {
	return optimizing.Notification{
		OptimizingJobID: jobid.New(time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC), 1),
		ActualStart:     time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		ActualStop:      time.Date(2026, 7, 15, 10, 5, 0, 0, time.UTC),
		FinalState:      "COMPLETED_SUCCESSFULLY",
		StopReason:      "maximum threads reached",
		OptimalThreads:  8,
		OptimalValue:    123.456789,
		Addresses:       []string{"oncall@example.com"},
	}
}

func TestLogNotifier_NoAddressesIsNoop(t *testing.T) {
	n := NewLog(nil)
	notif := testNotification()
	notif.Addresses = nil
	require.NoError(t, n.Notify(context.Background(), notif))
}

func TestLogNotifier_Notify(t *testing.T) {
	n := NewLog(nil)
	require.NoError(t, n.Notify(context.Background(), testNotification()))
}

func TestFormatDecimal_ThreeDecimalPlaces(t *testing.T) {
	require.Equal(t, "123.457", formatDecimal(123.456789))
	require.Equal(t, "100.000", formatDecimal(100))
}

func startMockSMTP(t *testing.T) *smtpmock.Server {
	t.Helper()
	server := smtpmock.New(smtpmock.ConfigurationAttr{
		LogToStdout:       false,
		LogServerActivity: false,
	})
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func TestSMTPNotifier_SendsNotification(t *testing.T) {
	server := startMockSMTP(t)

	n := NewSMTP(Config{
		Host: "127.0.0.1",
		Port: server.PortNumber(),
		From: "loadgen@example.com",
	}, nil)

	require.NoError(t, n.Notify(context.Background(), testNotification()))
	require.Eventually(t, func() bool {
		return len(server.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := server.Messages()[0]
	require.Contains(t, msg.MsgRequest(), "Optimizing Job")
	require.Contains(t, msg.RcpttoRequest(), "oncall@example.com")
}

func TestSMTPNotifier_NoAddressesSkipsDial(t *testing.T) {
	n := NewSMTP(Config{Host: "127.0.0.1", Port: 1, From: "loadgen@example.com"}, nil)
	notif := testNotification()
	notif.Addresses = nil
	require.NoError(t, n.Notify(context.Background(), notif))
}
