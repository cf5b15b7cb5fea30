// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// Config is an SMTP Notifier's connection and auth settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DialTimeout time.Duration
}

// SMTPNotifier sends the Optimizing Job terminal notification as a
// plain-text email, one connection per notification.
//
// Grounded on the bravo1goingdark-mailgrid example repo's
// email/smtp.go (ConnectSMTP: dial, STARTTLS if offered, PLAIN auth)
// and email/sender.go (MAIL FROM / RCPT TO / DATA, one RCPT per
// recipient, headers then a blank line then the body).
type SMTPNotifier struct {
	cfg    Config
	logger logging.Logger
}

// NewSMTP returns an SMTPNotifier. A nil logger falls back to NoOpLogger.
func NewSMTP(cfg Config, logger logging.Logger) *SMTPNotifier {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

func (n *SMTPNotifier) Notify(ctx context.Context, notif optimizing.Notification) error {
	if len(notif.Addresses) == 0 {
		return nil
	}

	client, err := n.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(n.cfg.From); err != nil {
		return errors.NewLoadgenErrorWithCause(errors.ErrorCodeUnknown, "MAIL FROM failed", err)
	}
	for _, addr := range notif.Addresses {
		if err := client.Rcpt(addr); err != nil {
			return errors.NewLoadgenErrorWithCause(errors.ErrorCodeUnknown, "RCPT TO failed for "+addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return errors.NewLoadgenErrorWithCause(errors.ErrorCodeUnknown, "DATA command failed", err)
	}
	defer w.Close()

	bw := bufio.NewWriter(w)
	headers := map[string]string{
		"From":         n.cfg.From,
		"To":           strings.Join(notif.Addresses, ", "),
		"Subject":      formatSubject(notif),
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=\"UTF-8\"",
	}
	for _, k := range []string{"From", "To", "Subject", "MIME-Version", "Content-Type"} {
		if _, err := bw.WriteString(k + ": " + headers[k] + "\r\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := bw.WriteString(formatBody(notif)); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	n.logger.Info("optimizing job notification sent", "optimizing_job_id", notif.OptimizingJobID.String(), "recipients", len(notif.Addresses))
	return client.Quit()
}

func (n *SMTPNotifier) dial(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	dialer := &net.Dialer{Timeout: n.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodeConnectionRefused, "SMTP dial failed", err)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodeUnknown, "SMTP client init failed", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodeTLSHandshake, "STARTTLS failed", err)
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodeUnknown, "SMTP auth failed", err)
		}
	}
	return client, nil
}

// decimalPrinter renders summary/optimal values with a stable 3-decimal
// format regardless of process locale, per SPEC_FULL.md §4.6's note on
// notification rendering.
var decimalPrinter = message.NewPrinter(language.English)

func formatDecimal(v float64) string {
	return decimalPrinter.Sprintf("%v", number.Decimal(v, number.Scale(3)))
}

func formatBody(notif optimizing.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimizing Job %s finished in state %s.\r\n", notif.OptimizingJobID, notif.FinalState)
	fmt.Fprintf(&b, "Reason: %s\r\n", notif.StopReason)
	fmt.Fprintf(&b, "Started: %s\r\n", notif.ActualStart.Format(time.RFC3339))
	fmt.Fprintf(&b, "Stopped: %s\r\n", notif.ActualStop.Format(time.RFC3339))
	fmt.Fprintf(&b, "Optimal threads: %d\r\n", notif.OptimalThreads)
	fmt.Fprintf(&b, "Optimal value: %s\r\n", formatDecimal(notif.OptimalValue))
	if notif.HasRerunValue {
		fmt.Fprintf(&b, "Rerun value: %s\r\n", formatDecimal(notif.RerunValue))
	}
	return b.String()
}
