package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	// ErrAborted is returned for jobs submitted, or still waiting, after Abort.
	ErrAborted = errors.New("scheduler aborted")
	// ErrLimitReached is returned once the job limit has been admitted.
	ErrLimitReached = errors.New("job limit reached")
	// ErrNoDriver is returned when no transport driver is configured.
	ErrNoDriver = errors.New("no driver configured")

	errNilResponse = errors.New("driver returned no response")
)

// ErrJobTimedOut indicates the driver did not answer within the job timeout.
type ErrJobTimedOut struct {
	URL   string
	After time.Duration
}

func (e *ErrJobTimedOut) Error() string {
	return fmt.Sprintf("job timed out: %s after %s", e.URL, e.After)
}

// Timeout reports true so callers can treat the error like a net timeout.
func (e *ErrJobTimedOut) Timeout() bool { return true }

// ErrTransport indicates the driver failed without producing an HTTP response.
type ErrTransport struct {
	URL string
	Err error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

func transportError(url string, err error) error {
	var te *ErrTransport
	if errors.As(err, &te) {
		return err
	}
	return &ErrTransport{URL: url, Err: err}
}

// errorTypeLabel classifies a failed job, or a response status, into a
// metrics label.
func errorTypeLabel(err error, statusCode int) string {
	if err == nil && statusCode == 0 {
		return "unknown"
	}

	var timedOut *ErrJobTimedOut
	if errors.As(err, &timedOut) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	switch {
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	}
	return "other"
}
