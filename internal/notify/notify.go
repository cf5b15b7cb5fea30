// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package notify implements the notification side effect SPEC_FULL.md
// §4.6's last paragraph requires on every Optimizing Job terminal
// transition: a log-only default, and an SMTP implementation
// (notify/smtp.go) built the way the teacher's email package sends
// mail. Both satisfy internal/optimizing.Notifier by structural typing.
package notify

import (
	"context"
	"fmt"

	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/pkg/logging"
)

// LogNotifier is the default Notifier: it writes the notification
// through the structured logger instead of sending mail. Used when no
// SMTP configuration is supplied, and in tests.
type LogNotifier struct {
	logger logging.Logger
}

// NewLog returns a LogNotifier. A nil logger falls back to NoOpLogger.
func NewLog(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notif optimizing.Notification) error {
	if len(notif.Addresses) == 0 {
		return nil
	}
	logging.LogJobEvent(n.logger, notif.OptimizingJobID.String(), string(notif.FinalState)).Info(
		"optimizing job notification",
		"stop_reason", notif.StopReason,
		"optimal_threads", notif.OptimalThreads,
		"optimal_value", notif.OptimalValue,
		"addresses", notif.Addresses,
	)
	return nil
}

// formatSubject and formatBody render the notification as text for
// SMTPNotifier; LogNotifier logs structured fields and does not use them.
func formatSubject(notif optimizing.Notification) string {
	return fmt.Sprintf("Optimizing Job %s: %s", notif.OptimizingJobID, notif.FinalState)
}
