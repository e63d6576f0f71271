// Package httpx wraps outbound HTTP calls with bounded retries.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned for non-2xx responses once retries are exhausted.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, truncate(e.Body, 300))
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryPolicy bounds how a request is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the upper bound of random delay added to each backoff.
	Jitter time.Duration
	// RetryStatuses lists non-5xx statuses worth retrying. Any 5xx is retried.
	RetryStatuses map[int]bool
}

// DefaultRetryPolicy suits short calls to a partner API on the booking path.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      100 * time.Millisecond,
		RetryStatuses: map[int]bool{
			http.StatusTooManyRequests: true,
			http.StatusRequestTimeout:  true,
		},
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.RetryStatuses == nil {
		p.RetryStatuses = d.RetryStatuses
	}
	return p
}

func (p RetryPolicy) retryable(code int) bool {
	return code >= 500 || p.RetryStatuses[code]
}

// Do sends the request built by build, rebuilding it for every attempt so
// bodies can be replayed. The response body is fully read and closed.
func Do(ctx context.Context, client *http.Client, build func(context.Context) (*http.Request, error), policy RetryPolicy) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, policy.backoff(attempt-1, lastErr)); err != nil {
				return 0, nil, err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return 0, nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			if !transient(err) {
				return 0, nil, err
			}
			lastErr = err
			continue
		}
		body, err := readAll(resp.Body)
		if err != nil {
			if !transient(err) {
				return resp.StatusCode, body, err
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, body, nil
		}

		serr := &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: body}
		if !policy.retryable(resp.StatusCode) {
			return resp.StatusCode, body, serr
		}
		lastErr = &retryAfterError{StatusError: serr, after: RetryAfter(resp.Header)}
	}

	var ra *retryAfterError
	if errors.As(lastErr, &ra) {
		return ra.StatusCode, ra.Body, ra.StatusError
	}
	return 0, nil, lastErr
}

// DoJSON is Do followed by decoding the response body into out.
func DoJSON(ctx context.Context, client *http.Client, build func(context.Context) (*http.Request, error), policy RetryPolicy, out any) error {
	_, body, err := Do(ctx, client, build, policy)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpx: decode response: %w", err)
	}
	return nil
}

type retryAfterError struct {
	*StatusError
	after time.Duration
}

func (p RetryPolicy) backoff(retry int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > 0 {
		return min(ra.after, p.MaxDelay)
	}
	d := p.BaseDelay << (retry - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readAll(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe")
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
// It returns zero when the header is absent or unparseable.
func RetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
