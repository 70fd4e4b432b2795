package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	t.Run("sets user agent", func(t *testing.T) {
		var got string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("User-Agent")
		}))
		defer server.Close()

		client := New(Config{UserAgent: "test-agent/2"})
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "test-agent/2", got)
	})

	t.Run("redirect loop", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/loop", http.StatusFound)
		}))
		defer server.Close()

		client := New(Config{MaxRedirects: 3})
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, err := client.Do(req)
		assert.ErrorIs(t, err, ErrTooManyRedirects)
		assert.False(t, errors.Is(err, ErrTransport))
	})

	t.Run("redirects within budget", func(t *testing.T) {
		hops := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hops < 2 {
				hops++
				http.Redirect(w, r, "/next", http.StatusFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := New(Config{MaxRedirects: 2})
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("connection refused is a transport error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		client := New(Config{})
		req, _ := http.NewRequest(http.MethodGet, addr, nil)
		_, err := client.Do(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)

		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, addr, te.URL)
	})

	t.Run("caller cancellation is not a transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		client := New(Config{})
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := client.Do(req)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, errors.Is(err, ErrTransport))
	})
}

func TestHostLimiter(t *testing.T) {
	t.Run("disabled limiter never blocks", func(t *testing.T) {
		l := NewHostLimiter(0, 0)
		for i := 0; i < 100; i++ {
			require.NoError(t, l.Wait(context.Background(), "a.example"))
		}
	})

	t.Run("burst exhausted respects context", func(t *testing.T) {
		l := NewHostLimiter(0.001, 1)
		require.NoError(t, l.Wait(context.Background(), "a.example"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, l.Wait(ctx, "a.example"))

		// Other hosts have their own bucket.
		assert.NoError(t, l.Wait(context.Background(), "b.example"))
	})
}

func TestRedactAndOrigin(t *testing.T) {
	assert.Equal(t, "https://lib.example/opds", Redact("https://user:pw@lib.example/opds?token=x#frag"))
	assert.Equal(t, "https://lib.example", Origin("https://LIB.example/opds/new?x=1"))
	assert.Equal(t, "http://lib.example:8080", Origin("http://lib.example:8080/"))
	assert.Equal(t, "", Origin("/relative"))
}
