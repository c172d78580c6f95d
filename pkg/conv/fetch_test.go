package conv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, BackoffFactor: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestFetcher_FetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<h1>Title</h1><p>Body text</p>"))
		case "/notes.md":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Some **notes**"))
		default:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("raw **text**"))
		}
	}))
	defer srv.Close()

	f := NewFetcherWithTimeout("test-agent", time.Second, noRetry())

	text, err := f.FetchText(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Body text")
	assert.NotContains(t, text, "<p>")

	text, err = f.FetchText(context.Background(), srv.URL+"/notes.md")
	require.NoError(t, err)
	assert.NotContains(t, text, "**")

	text, err = f.FetchText(context.Background(), srv.URL+"/raw")
	require.NoError(t, err)
	assert.Equal(t, "raw **text**", text)
}

func TestFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcherWithTimeout("test-agent", time.Second, noRetry()).FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetcher_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	text, err := NewFetcherWithTimeout("test-agent", time.Second, noRetry()).FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "finally", text)
	assert.EqualValues(t, 3, calls.Load())
}
