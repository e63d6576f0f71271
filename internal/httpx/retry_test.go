package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func getBuilder(url string) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	status, body, err := Do(context.Background(), srv.Client(), getBuilder(srv.URL), fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	status, _, err := Do(context.Background(), srv.Client(), getBuilder(srv.URL), fastPolicy())
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, body, err := Do(context.Background(), srv.Client(), getBuilder(srv.URL), fastPolicy())
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, string(body), "nope")
	assert.EqualValues(t, 1, calls.Load())
}

func TestDoRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	status, _, err := Do(context.Background(), srv.Client(), getBuilder(srv.URL), fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Second}
	_, _, err := Do(ctx, srv.Client(), getBuilder(srv.URL), policy)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://meet.example/abc"}`))
	}))
	defer srv.Close()

	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, DoJSON(context.Background(), srv.Client(), getBuilder(srv.URL), fastPolicy(), &out))
	assert.Equal(t, "https://meet.example/abc", out.URL)
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, RetryAfter(h))
	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, RetryAfter(h))
	h.Set("Retry-After", "soon")
	assert.Zero(t, RetryAfter(h))
	h.Set("Retry-After", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	assert.Zero(t, RetryAfter(h))
}
