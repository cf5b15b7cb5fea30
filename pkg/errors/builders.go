// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// WrapError converts a generic error into a structured LoadgenError so
// that the error carries a code.
func WrapError(err error) *LoadgenError {
	if err == nil {
		return nil
	}

	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr
	}

	if stderrors.Is(err, context.Canceled) {
		return NewLoadgenErrorWithCause(ErrorCodeContextCanceled, "operation was canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewLoadgenErrorWithCause(ErrorCodeDeadlineExceeded, "operation timed out", err)
	}

	if netErr := classifyNetworkError(err); netErr != nil {
		return netErr
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return classifyURLError(urlErr)
	}

	return NewLoadgenErrorWithCause(ErrorCodeUnknown, err.Error(), err)
}

// WrapHTTPError converts an HTTP response status and body into a
// structured LoadgenError (the worker protocol does not use it; it has
// its own closed response-code enum).
func WrapHTTPError(statusCode int, body []byte) *LoadgenError {
	code := mapHTTPStatusToErrorCode(statusCode)
	message := fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode))

	loadgenErr := NewLoadgenError(code, message)
	if len(body) > 0 && len(body) < 1000 {
		loadgenErr.Details = string(body)
	}

	return loadgenErr
}

// classifyNetworkError identifies and wraps network-related errors.
func classifyNetworkError(err error) *LoadgenError {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.Canceled) {
		return NewLoadgenErrorWithCause(ErrorCodeContextCanceled, "operation was canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewLoadgenErrorWithCause(ErrorCodeDeadlineExceeded, "operation deadline exceeded", err)
	}

	errStr := err.Error()

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewLoadgenErrorWithCause(ErrorCodeNetworkTimeout, "network operation timed out", err)
		}
		if strings.Contains(errStr, "connection reset") ||
			strings.Contains(errStr, "broken pipe") ||
			strings.Contains(errStr, "network is unreachable") ||
			strings.Contains(errStr, "temporary") {
			return NewLoadgenErrorWithCause(ErrorCodeConnectionRefused, "temporary network failure", err)
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused"):
		return NewLoadgenErrorWithCause(ErrorCodeConnectionRefused, "connection refused by worker", err)
	case strings.Contains(errStr, "no such host"):
		return NewLoadgenErrorWithCause(ErrorCodeDNSResolution, "DNS resolution failed", err)
	case strings.Contains(errStr, "timeout"):
		return NewLoadgenErrorWithCause(ErrorCodeNetworkTimeout, "network timeout", err)
	case strings.Contains(errStr, "tls"):
		return NewLoadgenErrorWithCause(ErrorCodeTLSHandshake, "TLS handshake failed", err)
	case strings.Contains(errStr, "certificate"):
		return NewLoadgenErrorWithCause(ErrorCodeTLSHandshake, "TLS certificate error", err)
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		var dnsErr *net.DNSError
		if stderrors.As(opErr.Err, &dnsErr) {
			return NewLoadgenErrorWithCause(ErrorCodeDNSResolution, "DNS lookup failed", dnsErr)
		}
		var syscallErr syscall.Errno
		if stderrors.As(opErr.Err, &syscallErr) {
			switch syscallErr {
			case syscall.ECONNREFUSED:
				return NewLoadgenErrorWithCause(ErrorCodeConnectionRefused, "connection refused", err)
			case syscall.ETIMEDOUT:
				return NewLoadgenErrorWithCause(ErrorCodeNetworkTimeout, "connection timeout", err)
			case syscall.ENETUNREACH:
				return NewLoadgenErrorWithCause(ErrorCodeDNSResolution, "network unreachable", err)
			}
		}
	}

	return nil
}

// classifyURLError handles URL-specific errors from an HTTP client.
func classifyURLError(urlErr *url.Error) *LoadgenError {
	if stderrors.Is(urlErr.Err, context.Canceled) {
		return NewLoadgenErrorWithCause(ErrorCodeContextCanceled, "operation was canceled", urlErr)
	}
	if stderrors.Is(urlErr.Err, context.DeadlineExceeded) {
		return NewLoadgenErrorWithCause(ErrorCodeDeadlineExceeded, "operation deadline exceeded", urlErr)
	}

	if netErr := classifyNetworkError(urlErr.Err); netErr != nil {
		return netErr
	}

	return NewLoadgenErrorWithCause(ErrorCodeNetworkTimeout, "URL error: "+urlErr.Op, urlErr)
}

// NewClientError creates errors for caller-side issues (bad CLI flags,
// malformed job ID, unknown workload class name).
func NewClientError(code ErrorCode, message string, details ...string) *LoadgenError {
	err := NewLoadgenError(code, message)
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}
	return err
}

// NewValidationErrorf creates a validation error with a formatted message.
func NewValidationErrorf(field string, value interface{}, format string, args ...interface{}) *ValidationError {
	message := fmt.Sprintf(format, args...)
	return NewValidationError(ErrorCodeValidationFailed, message, field, value, nil)
}

// NewWorkerErrorf creates a worker-reported error with a formatted message,
// from a JobCompleted or JobControl response carrying a non-success code.
func NewWorkerErrorf(code ErrorCode, workerID string, format string, args ...interface{}) *WorkerError {
	message := fmt.Sprintf(format, args...)
	return NewWorkerError(code, message, workerID, nil)
}

// NewJobError creates job-specific errors keyed by job ID, classifying the
// underlying cause by message pattern when no structured code is already known.
func NewJobError(jobID string, operation string, cause error) *LoadgenError {
	var code ErrorCode
	var message string

	causeStr := cause.Error()
	switch {
	case strings.Contains(causeStr, "not found") || strings.Contains(causeStr, "no such job"):
		code = ErrorCodeNoSuchJob
		message = fmt.Sprintf("job %s not found", jobID)
	case strings.Contains(causeStr, "already complete") || strings.Contains(causeStr, "terminal"):
		code = ErrorCodeUnacceptableChild
		message = fmt.Sprintf("job %s is already in a terminal state", jobID)
	default:
		code = ErrorCodeWorkerLocalError
		message = fmt.Sprintf("job %s failed during %s", jobID, operation)
	}

	err := NewLoadgenErrorWithCause(code, message, cause)
	err.Details = fmt.Sprintf("job ID: %s, operation: %s", jobID, operation)
	return err
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.IsRetryable()
	}

	if err != nil {
		errStr := err.Error()
		return strings.Contains(errStr, "timeout") ||
			strings.Contains(errStr, "connection refused") ||
			strings.Contains(errStr, "temporary failure") ||
			strings.Contains(errStr, "service unavailable")
	}

	return false
}

// IsTemporaryError checks if an error is transient.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.IsTemporary()
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	errorStr := err.Error()
	if strings.Contains(errorStr, "connection reset") ||
		strings.Contains(errorStr, "broken pipe") ||
		strings.Contains(errorStr, "network is unreachable") ||
		strings.Contains(errorStr, "temporary") {
		return true
	}

	return false
}

// GetErrorCode extracts the error code from any error.
func GetErrorCode(err error) ErrorCode {
	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.Code
	}
	return ErrorCodeUnknown
}

// GetErrorCategory extracts the error category from any error.
func GetErrorCategory(err error) ErrorCategory {
	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.Category
	}
	return CategoryUnknown
}

// IsNetworkError checks if an error is a network-related error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.Category == CategoryNetwork
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"timeout",
		"tls handshake",
		"dns",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var valErr *ValidationError
	if stderrors.As(err, &valErr) {
		return true
	}
	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.Category == CategoryValidation
	}
	return false
}

// IsWorkerError checks if an error originated from a worker-reported response.
func IsWorkerError(err error) bool {
	var workerErr *WorkerError
	if stderrors.As(err, &workerErr) {
		return true
	}
	var loadgenErr *LoadgenError
	if stderrors.As(err, &loadgenErr) {
		return loadgenErr.Category == CategoryWorker
	}
	return false
}
