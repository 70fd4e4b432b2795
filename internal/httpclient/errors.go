package httpclient

import (
	"errors"
	"fmt"
)

// ErrTransport matches every TransportError via errors.Is.
var ErrTransport = errors.New("transport error")

// ErrTooManyRedirects indicates the redirect budget was exhausted
var ErrTooManyRedirects = errors.New("too many redirects")

// TransportError is a network-level failure (DNS, dial, TLS, timeout, reset)
// or an answer that says nothing about the request itself, such as 5xx or 429.
// Callers may retry it with backoff.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ServerError is an unexpected HTTP status from a catalog or OAuth endpoint
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("unexpected status: HTTP %d", e.StatusCode)
}
