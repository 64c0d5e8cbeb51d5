package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCursorLoop is returned when the server hands back a cursor already seen
	// for the same namespace.
	ErrCursorLoop = errors.New("continuation cursor repeated")
	// ErrBatchLimit is returned when a namespace exceeds the configured batch cap.
	ErrBatchLimit = errors.New("batch limit reached")
)

// NetworkError wraps any failed HTTP call. StatusCode is zero for transport failures.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that is not the expected JSON document.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WorkerCrashError is reported by the dispatcher when a worker panics.
type WorkerCrashError struct {
	Namespace Namespace
	Value     any
}

func (e *WorkerCrashError) Error() string {
	return fmt.Sprintf("worker for namespace %d crashed: %v", e.Namespace, e.Value)
}

// IsRetryable classifies err for the optional classifying retry mode.
// Transport failures, 5xx, 408 and 429 are retryable; other 4xx and decode
// errors are not. Context errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		switch {
		case netErr.StatusCode == 0:
			return true
		case netErr.StatusCode == http.StatusRequestTimeout, netErr.StatusCode == http.StatusTooManyRequests:
			return true
		case netErr.StatusCode >= 400 && netErr.StatusCode < 500:
			return false
		}
		return true
	}
	return true
}
