package oauth2

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means no usable token exists for a source and none could
	// be obtained silently; the caller must run OAuth with user credentials.
	ErrAuthRequired   = errors.New("authentication required")
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrRejected       = errors.New("credentials rejected")
	ErrInvalidRequest = errors.New("invalid oauth request")

	// ErrInvalidTokenResponse is a 2xx answer without a usable access token.
	ErrInvalidTokenResponse = errors.New("invalid token response")
)

// RejectedError is an authorization server refusing a grant: bad credentials
// or a revoked refresh token. It is an expected outcome, never retried.
type RejectedError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("grant rejected (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("grant rejected with status %d", e.StatusCode)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
