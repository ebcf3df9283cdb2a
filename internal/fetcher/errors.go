package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrTooManyRedirects is returned when a fetch follows more redirect hops
// than the configured cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// TransportError wraps a network level failure (DNS, connect, TLS,
// timeout or body read).
type TransportError struct {
	URL string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a response with a non-2xx status code.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable reports whether another attempt may succeed. Every fetch
// failure is retryable except cancellation of the caller's context.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	var transportErr *TransportError
	return errors.As(err, &statusErr) || errors.As(err, &transportErr) || errors.Is(err, ErrTooManyRedirects)
}
