package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfman30/virevamind/internal/httpx"
)

// apiClient talks to the VirevaMind HTTP API.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(base string, client *http.Client) (*apiClient, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid --api url %q", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &apiClient{base: base, client: client}, nil
}

// Reads are retried; writes are sent once so a hold or confirm is never
// repeated behind the user's back.
func policyFor(method string) httpx.RetryPolicy {
	p := httpx.DefaultRetryPolicy()
	if method != http.MethodGet {
		p.MaxAttempts = 1
	}
	return p
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	err := httpx.DoJSON(ctx, c.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}, policyFor(method), out)
	return apiError(err)
}

// apiError replaces a raw status error with the server's error message.
func apiError(err error) error {
	var serr *httpx.StatusError
	if !errors.As(err, &serr) {
		return err
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(serr.Body, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", body.Error, serr.StatusCode)
	}
	return fmt.Errorf("HTTP %d from %s %s", serr.StatusCode, serr.Method, serr.URL)
}
