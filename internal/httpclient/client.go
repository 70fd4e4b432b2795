// Package httpclient provides the HTTP client shared by the catalog fetcher and
// the OAuth endpoints: bounded redirects, per-host politeness and a failure
// taxonomy that separates transport problems from protocol answers.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 10
	DefaultUserAgent    = "opdscatalog/1.0"
)

// Config holds client settings.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string

	// RateLimit is requests per second per host; zero disables limiting
	RateLimit float64
	RateBurst int

	// Transport overrides the default transport (tests)
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		MaxRedirects: DefaultMaxRedirects,
		UserAgent:    DefaultUserAgent,
		RateLimit:    5,
		RateBurst:    10,
	}
}

// Client wraps http.Client.
type Client struct {
	httpClient *http.Client
	limiter    *HostLimiter
	userAgent  string
}

// New creates a Client from cfg, filling zero values with defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	maxRedirects := cfg.MaxRedirects
	userAgent := cfg.UserAgent

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				// Credentials never follow a redirect to another host.
				if len(via) > 0 && req.URL.Host != via[0].URL.Host {
					req.Header.Del("Authorization")
				}
				req.Header.Set("User-Agent", userAgent)
				return nil
			},
		},
		limiter:   NewHostLimiter(cfg.RateLimit, cfg.RateBurst),
		userAgent: userAgent,
	}
}

// Do sends req. Errors are classified: ErrTooManyRedirects, the context's own
// error when the caller cancelled, or *TransportError for everything else.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx, req.URL.Host); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: Redact(req.URL.String()), Err: err}
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, req, err)
	}
	return resp, nil
}

// HTTPClient exposes the underlying client for libraries that need one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func classify(ctx context.Context, req *http.Request, err error) error {
	if errors.Is(err, ErrTooManyRedirects) {
		return fmt.Errorf("%s: %w", Redact(req.URL.String()), ErrTooManyRedirects)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return &TransportError{URL: Redact(req.URL.String()), Err: err}
}
