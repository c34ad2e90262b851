package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webharvest/batchfetch/internal/fetcher"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer ts.Close()

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), fetcher.Request{URL: ts.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", string(resp.Body))
	assert.Equal(t, 11, resp.ContentLength)
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetchNon2xxStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: ts.URL})
	require.Error(t, err)

	var statusErr *fetcher.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, ts.URL, statusErr.URL)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("too late"))
	}))
	defer ts.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: ts.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout error, got %v", err)
}

func TestFetchConnectFailure(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	// Closed port: connection refused, no status code.
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: "http://127.0.0.1:1/", Timeout: time.Second})
	require.Error(t, err)

	var statusErr *fetcher.StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestFetchCustomHeaders(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := New(Config{UserAgent: "custom-agent"})
	_, err := f.Fetch(context.Background(), fetcher.Request{
		URL:     ts.URL,
		Headers: map[string]string{"X-Trace": "yes"},
	})
	require.NoError(t, err)
}

func TestFetchRedirectCap(t *testing.T) {
	t.Parallel()

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always redirect to force the cap.
		http.Redirect(w, r, ts.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer ts.Close()

	f := New(Config{MaxRedirects: 3})
	_, err := f.Fetch(context.Background(), fetcher.Request{URL: ts.URL, Timeout: 5 * time.Second})
	require.Error(t, err)
}
