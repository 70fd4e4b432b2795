package opds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
)

const authDocument = `{
  "id": "/auth",
  "title": "Sign in",
  "authentication": [
    {"type": "http://opds-spec.org/auth/oauth/password",
     "links": [{"rel": "authenticate", "href": "/oauth/token"}, {"rel": "refresh", "href": "/oauth/refresh"}]}
  ]
}`

// fakeTokens is a TokenProvider that hands out a fixed token and a fixed
// refresh outcome.
type fakeTokens struct {
	token        string
	freshToken   string
	refreshErr   error
	refreshCalls atomic.Int32
}

func (f *fakeTokens) Token(ctx context.Context, rawURL string) (string, bool) {
	return f.token, f.token != ""
}

func (f *fakeTokens) HandleUnauthorized(ctx context.Context, rawURL, staleToken string) (string, error) {
	f.refreshCalls.Add(1)
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.freshToken, nil
}

func newTestFetcher(tokens TokenProvider, maxBody int64) *Fetcher {
	client := httpclient.New(httpclient.Config{MaxRedirects: 3})
	return NewFetcher(client, tokens, FetcherConfig{MaxBodyBytes: maxBody})
}

func serveAtom(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", MediaTypeAtomCatalog)
	_, _ = w.Write([]byte(body))
}

func TestFetcher_BrowseAnonymous(t *testing.T) {
	var accept, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		auth = r.Header.Get("Authorization")
		serveAtom(w, atomCatalog)
	}))
	defer srv.Close()

	feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/opds")
	require.NoError(t, err)

	assert.Equal(t, "Public Library", feed.Title)
	assert.Len(t, feed.Entries, 2)
	assert.Equal(t, srv.URL+"/opds?page=2", feed.Next.Href)
	assert.Contains(t, accept, "application/atom+xml;profile=opds-catalog")
	assert.Contains(t, accept, "application/opds+json")
	assert.Empty(t, auth)
}

func TestFetcher_BrowseOPDS2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", MediaTypeOPDS2)
		_, _ = w.Write([]byte(opds2Catalog))
	}))
	defer srv.Close()

	feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/v2/catalog")
	require.NoError(t, err)
	assert.Equal(t, FormatOPDS2, feed.Format)
	assert.Equal(t, srv.URL+"/books/alice.epub", feed.Entries[0].AcquisitionLinks()[0].Href)
}

func TestFetcher_ResolvesAgainstFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/catalog/root", http.StatusFound)
	})
	mux.HandleFunc("/catalog/root", func(w http.ResponseWriter, r *http.Request) {
		serveAtom(w, atomCatalog)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/catalog/root", feed.URL)
	assert.Equal(t, srv.URL+"/catalog/books/1.epub", feed.Entries[0].AcquisitionLinks()[0].Href)
}

func TestFetcher_RedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/loop")
	assert.Nil(t, feed)
	assert.ErrorIs(t, err, httpclient.ErrTooManyRedirects)
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := newTestFetcher(nil, 0)

	for _, raw := range []string{"", "lib.example/opds", "ftp://lib.example/opds", "https://"} {
		_, err := f.Browse(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestFetcher_UnauthorizedWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", MediaTypeAuthentication)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(authDocument))
	}))
	defer srv.Close()

	feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/opds")
	assert.Nil(t, feed)
	require.ErrorIs(t, err, ErrAuthRequired)

	var authErr *AuthRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.NotNil(t, authErr.Document)

	oauthURL, refreshURL, ok := authErr.Document.PasswordGrant()
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/oauth/token", oauthURL)
	assert.Equal(t, srv.URL+"/oauth/refresh", refreshURL)
}

func TestFetcher_SilentRefreshAndRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		serveAtom(w, atomCatalog)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", freshToken: "fresh"}
	feed, err := newTestFetcher(tokens, 0).Browse(context.Background(), srv.URL+"/opds")
	require.NoError(t, err)

	assert.Equal(t, "Public Library", feed.Title)
	assert.Equal(t, int32(1), tokens.refreshCalls.Load())
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetcher_ForbiddenTriggersRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		serveAtom(w, atomCatalog)
	}))
	defer srv.Close()

	tokens := &fakeTokens{freshToken: "fresh"}
	_, err := newTestFetcher(tokens, 0).Browse(context.Background(), srv.URL+"/opds")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.refreshCalls.Load())
}

func TestFetcher_RefreshFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Run("no refresh possible", func(t *testing.T) {
		tokens := &fakeTokens{token: "stale", refreshErr: oauth2.ErrAuthRequired}
		_, err := newTestFetcher(tokens, 0).Browse(context.Background(), srv.URL+"/opds")
		assert.ErrorIs(t, err, ErrAuthRequired)
	})

	t.Run("refresh endpoint unreachable", func(t *testing.T) {
		transportErr := &httpclient.TransportError{URL: "https://auth.example/token", Err: errors.New("connection refused")}
		tokens := &fakeTokens{token: "stale", refreshErr: transportErr}
		_, err := newTestFetcher(tokens, 0).Browse(context.Background(), srv.URL+"/opds")
		assert.ErrorIs(t, err, httpclient.ErrTransport)
		assert.NotErrorIs(t, err, ErrAuthRequired)
	})

	t.Run("still unauthorized after refresh", func(t *testing.T) {
		tokens := &fakeTokens{token: "stale", freshToken: "also-rejected"}
		_, err := newTestFetcher(tokens, 0).Browse(context.Background(), srv.URL+"/opds")
		assert.ErrorIs(t, err, ErrAuthRequired)
		assert.Equal(t, int32(1), tokens.refreshCalls.Load())
	})
}

func TestFetcher_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transport bool
	}{
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/opds")
			assert.Nil(t, feed)

			var statusErr *HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.transport, errors.Is(err, httpclient.ErrTransport))
		})
	}
}

func TestFetcher_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated atom", atomCatalog[:300]},
		{"html", "<!DOCTYPE html><html><body>Login</body></html>"},
		{"plain text", "Service temporarily unavailable"},
		{"truncated json", opds2Catalog[:60]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				serveAtom(w, tt.body)
			}))
			defer srv.Close()

			feed, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/opds")
			assert.Nil(t, feed)
			require.ErrorIs(t, err, ErrMalformedFeed)

			var malformed *MalformedFeedError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, http.StatusOK, malformed.StatusCode)
			assert.Equal(t, tt.body, malformed.BodyPrefix)
		})
	}
}

func TestFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveAtom(w, atomCatalog)
	}))
	defer srv.Close()

	feed, err := newTestFetcher(nil, 128).Browse(context.Background(), srv.URL+"/opds")
	assert.Nil(t, feed)
	assert.ErrorIs(t, err, ErrMalformedFeed)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestFetcher_BodyPrefixIsBounded(t *testing.T) {
	body := strings.Repeat("x", bodyPrefixBytes*2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := newTestFetcher(nil, 0).Browse(context.Background(), srv.URL+"/opds")
	var malformed *MalformedFeedError
	require.True(t, errors.As(err, &malformed))
	assert.Len(t, malformed.BodyPrefix, bodyPrefixBytes)
}

func TestFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveAtom(w, atomCatalog)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(nil, 0).Browse(ctx, srv.URL+"/opds")
	assert.ErrorIs(t, err, context.Canceled)
}
