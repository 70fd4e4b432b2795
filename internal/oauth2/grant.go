package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mrlokans/opdscatalog/internal/httpclient"
)

const maxTokenResponseBytes = 1 << 20

// Doer sends HTTP requests. *httpclient.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GrantClient performs the OAuth password and refresh_token grants used by
// OPDS catalogs (http://opds-spec.org/auth/oauth/password).
type GrantClient struct {
	httpClient Doer
}

func NewGrantClient(client Doer) *GrantClient {
	return &GrantClient{httpClient: client}
}

// PasswordGrant exchanges a login and password for tokens.
func (g *GrantClient) PasswordGrant(ctx context.Context, endpoint, login, password string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("username", login)
	data.Set("password", password)

	return g.exchange(ctx, endpoint, data)
}

// RefreshGrant exchanges a plaintext refresh token for a new access token.
func (g *GrantClient) RefreshGrant(ctx context.Context, endpoint, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return g.exchange(ctx, endpoint, data)
}

// exchange posts a grant form. Failures come back as one of:
// *RejectedError for 400/401/403 or an OAuth error body,
// *httpclient.TransportError for network failures, 5xx, 408, 429 and other
// unexpected statuses or unusable 2xx bodies, or the context error.
func (g *GrantClient) exchange(ctx context.Context, endpoint string, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create token request: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, &httpclient.TransportError{URL: httpclient.Redact(endpoint), Err: err}
	}

	if retryableStatus(resp.StatusCode) {
		return nil, statusError(endpoint, resp.StatusCode)
	}

	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &errResp)

	if errResp.Error != "" || rejectionStatus(resp.StatusCode) {
		return nil, &RejectedError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(endpoint, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}

	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return nil, &httpclient.TransportError{URL: httpclient.Redact(endpoint), Err: ErrInvalidTokenResponse}
	}

	tokenType := tokenResp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &TokenResponse{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    tokenResp.ExpiresIn,
		Scope:        tokenResp.Scope,
	}, nil
}

// rejectionStatus reports statuses by which a token endpoint refuses the grant itself.
func rejectionStatus(code int) bool {
	return code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden
}

// retryableStatus reports statuses that say nothing about the credentials,
// whatever the body carries.
func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError ||
		code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests
}

func statusError(endpoint string, code int) error {
	return &httpclient.TransportError{
		URL: httpclient.Redact(endpoint),
		Err: &httpclient.ServerError{StatusCode: code},
	}
}
