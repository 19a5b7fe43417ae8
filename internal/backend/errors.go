package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ca-srg/searchchat/internal/types"
)

// Error describes a failed backend call
type Error struct {
	Type       types.ErrorType `json:"type"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	Retryable  bool            `json:"retryable"`
	Timestamp  time.Time       `json:"timestamp"`
	Err        error           `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the call may succeed if attempted again
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func newError(errType types.ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now(),
		Err:       cause,
	}
}

// ClassifyHTTPStatus maps a non-2xx backend status to an Error.
// Server errors and 429 are retryable, other client errors are not.
func ClassifyHTTPStatus(statusCode int) *Error {
	err := newError(types.ErrorTypeBackendStatus,
		fmt.Sprintf("backend returned %s", http.StatusText(statusCode)), false, nil)
	err.StatusCode = statusCode

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.Type = types.ErrorTypeRateLimit
		err.Retryable = true
	case statusCode >= 500:
		err.Retryable = true
	}
	return err
}

// classifyTransportError maps an error from http.Client.Do to an Error
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return newError(types.ErrorTypeNetwork, "request cancelled", false, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(types.ErrorTypeTimeout, "backend request timed out", true, err)
	}

	return newError(types.ErrorTypeNetwork, "failed to reach backend", true, err)
}

// ErrorType returns the type of err if it is (or wraps) a backend Error
func ErrorType(err error) types.ErrorType {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Type
	}
	return types.ErrorTypeUnknown
}
