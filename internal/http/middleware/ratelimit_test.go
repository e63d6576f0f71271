package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestRateLimiterBucket(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(1, 2)
	rl.now = clock.now

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, wait := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "clients are limited independently")

	clock.t = clock.t.Add(time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(1, 1)
	rl.now = clock.now
	rl.Allow("a")
	clock.t = clock.t.Add(time.Hour)
	rl.Allow("b")

	assert.Equal(t, 1, rl.evictIdle())
	assert.Len(t, rl.buckets, 1)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/holds", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, send().Code)
	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimiterRunStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRateLimiter(1, 1).Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done
}
