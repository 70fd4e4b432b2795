// Package opds fetches and parses OPDS catalogs.
//
// Browse issues the GET, stamps a bearer token when the Auth Manager holds
// one for the URL's origin, retries once after a silent refresh on 401/403,
// and parses the body as OPDS 1.x Atom or OPDS 2.0 JSON into a Feed. A
// failed parse never yields a partial Feed.
package opds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
)

const (
	DefaultMaxBodyBytes = 20 << 20

	acceptCatalog = "application/atom+xml;profile=opds-catalog, application/opds+json, " +
		"application/xml;q=0.9, */*;q=0.8"

	bodyPrefixBytes = 2048
	maxAuthDocBytes = 256 << 10
)

var ErrInvalidURL = errors.New("invalid catalog url")

// Doer sends HTTP requests. *httpclient.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenProvider supplies bearer tokens per catalog origin. *oauth2.Manager
// satisfies it.
type TokenProvider interface {
	Token(ctx context.Context, rawURL string) (string, bool)
	HandleUnauthorized(ctx context.Context, rawURL, staleToken string) (string, error)
}

// FetcherConfig holds fetcher settings.
type FetcherConfig struct {
	MaxBodyBytes int64
}

// Fetcher retrieves catalog documents.
type Fetcher struct {
	client  Doer
	tokens  TokenProvider
	maxBody int64
}

// NewFetcher creates a Fetcher. tokens may be nil for anonymous catalogs.
func NewFetcher(client Doer, tokens TokenProvider, cfg FetcherConfig) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{
		client:  client,
		tokens:  tokens,
		maxBody: cfg.MaxBodyBytes,
	}
}

type response struct {
	url         *url.URL
	status      int
	contentType string
	body        []byte
	truncated   bool
}

// Browse fetches rawURL and parses it into a Feed.
//
// Errors: ErrInvalidURL, *AuthRequiredError, *HTTPStatusError,
// *MalformedFeedError, httpclient.ErrTooManyRedirects, *httpclient.TransportError
// or the context's error.
func (f *Fetcher) Browse(ctx context.Context, rawURL string) (*Feed, error) {
	target, err := ParseCatalogURL(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.get(ctx, target.String(), acceptCatalog)
	if err != nil {
		log.Printf("Failed to fetch catalog %s: %v", httpclient.Redact(target.String()), err)
		return nil, err
	}

	feed, err := parseDocument(resp)
	if err != nil {
		malformed := &MalformedFeedError{
			URL:         httpclient.Redact(resp.url.String()),
			StatusCode:  resp.status,
			ContentType: resp.contentType,
			BodyPrefix:  prefix(resp.body, bodyPrefixBytes),
			Err:         err,
		}
		log.Printf("Catalog %s returned a malformed document: %v", malformed.URL, err)
		return nil, malformed
	}

	log.Printf("Fetched catalog %s (%s, %d entries)", httpclient.Redact(resp.url.String()), feed.Format, len(feed.Entries))
	return feed, nil
}

// ParseCatalogURL validates an absolute http(s) URL.
func ParseCatalogURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

// get performs an authenticated GET, refreshing and retrying once when the
// server answers 401 or 403.
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*response, error) {
	var token string
	if f.tokens != nil {
		token, _ = f.tokens.Token(ctx, rawURL)
	}

	resp, err := f.do(ctx, rawURL, accept, token)
	if err != nil {
		return nil, err
	}

	if isAuthChallenge(resp.status) {
		if f.tokens == nil {
			return nil, authRequired(resp)
		}

		fresh, err := f.tokens.HandleUnauthorized(ctx, rawURL, token)
		if err != nil {
			if errors.Is(err, oauth2.ErrAuthRequired) {
				return nil, authRequired(resp)
			}
			return nil, err
		}

		resp, err = f.do(ctx, rawURL, accept, fresh)
		if err != nil {
			return nil, err
		}
		if isAuthChallenge(resp.status) {
			return nil, authRequired(resp)
		}
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, &HTTPStatusError{URL: httpclient.Redact(resp.url.String()), StatusCode: resp.status}
	}

	return resp, nil
}

func (f *Fetcher) do(ctx context.Context, rawURL, accept, token string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", accept)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.maxBody
	if isAuthChallenge(resp.StatusCode) {
		limit = maxAuthDocBytes
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httpclient.TransportError{URL: httpclient.Redact(rawURL), Err: err}
	}

	out := &response{
		url:         resp.Request.URL,
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}
	if int64(len(body)) > limit {
		out.body = body[:limit]
		out.truncated = true
	}
	return out, nil
}

func isAuthChallenge(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func authRequired(resp *response) *AuthRequiredError {
	e := &AuthRequiredError{
		URL:        httpclient.Redact(resp.url.String()),
		StatusCode: resp.status,
	}
	if mediaTypeMatches(resp.contentType, MediaTypeAuthentication) ||
		mediaTypeMatches(resp.contentType, MediaTypeAuthenticationX) ||
		mediaTypeMatches(resp.contentType, "application/json") {
		e.Document = parseAuthDocument(resp.body, resp.url)
	}
	return e
}

// parseDocument picks the parser from the body itself; servers often send
// catalogs as text/xml or application/octet-stream.
func parseDocument(resp *response) (*Feed, error) {
	if resp.truncated {
		return nil, ErrBodyTooLarge
	}

	body := bytes.TrimSpace(bytes.TrimPrefix(resp.body, []byte("\xef\xbb\xbf")))
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeJSON:
		return parseOPDS2(body, resp.url)
	case gofeed.FeedTypeAtom:
		return parseAtom(body, resp.url)
	case gofeed.FeedTypeRSS:
		return nil, errors.New("RSS document is not an OPDS catalog")
	}

	if body[0] == '<' {
		return parseAtom(body, resp.url)
	}
	return nil, fmt.Errorf("unrecognized document (content type %q)", resp.contentType)
}

func prefix(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
