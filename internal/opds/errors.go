package opds

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mrlokans/opdscatalog/internal/httpclient"
)

var (
	ErrMalformedFeed = errors.New("malformed feed")
	ErrAuthRequired  = errors.New("authentication required")
	ErrBodyTooLarge  = errors.New("response body exceeds limit")
)

// MalformedFeedError is returned when a response cannot be parsed as a
// catalog document. No partial feed accompanies it.
type MalformedFeedError struct {
	URL         string
	StatusCode  int
	ContentType string

	// BodyPrefix holds the start of the offending body for diagnostics
	BodyPrefix string
	Err        error
}

func (e *MalformedFeedError) Error() string {
	return fmt.Sprintf("malformed feed at %s: %v", e.URL, e.Err)
}

func (e *MalformedFeedError) Unwrap() error {
	return e.Err
}

func (e *MalformedFeedError) Is(target error) bool {
	return target == ErrMalformedFeed
}

// AuthRequiredError is returned when a catalog refuses access and no silent
// refresh could fix it. Document is set when the server described how to
// authenticate.
type AuthRequiredError struct {
	URL        string
	StatusCode int
	Document   *AuthDocument
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required for %s (HTTP %d)", e.URL, e.StatusCode)
}

func (e *AuthRequiredError) Is(target error) bool {
	return target == ErrAuthRequired
}

// HTTPStatusError is a non-success answer that is neither an auth challenge
// nor a redirect. 5xx answers also match httpclient.ErrTransport.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == httpclient.ErrTransport && e.StatusCode >= http.StatusInternalServerError
}
