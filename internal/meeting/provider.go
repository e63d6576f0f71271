// Package meeting creates video session links for confirmed bookings.
package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/virevamind/internal/httpx"
	"github.com/wolfman30/virevamind/internal/ledger"
)

// Provider creates a meeting for a booking and returns its join URL.
type Provider interface {
	CreateMeeting(ctx context.Context, booking ledger.Booking) (string, error)
}

// StubProvider derives a deterministic link from the confirmation token.
type StubProvider struct {
	BaseURL string
}

func (p StubProvider) CreateMeeting(_ context.Context, booking ledger.Booking) (string, error) {
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = "https://meet.virevamind.test"
	}
	return base + "/" + booking.ConfirmationToken, nil
}

type meetingRequest struct {
	BookingID    string    `json:"booking_id"`
	Confirmation string    `json:"confirmation_token"`
	TherapistID  string    `json:"therapist_id"`
	SeekerID     string    `json:"seeker_id"`
	StartsAt     time.Time `json:"starts_at"`
	Minutes      int       `json:"duration_minutes"`
}

type meetingResponse struct {
	URL string `json:"url"`
}

// HTTPProvider asks a partner endpoint to create the meeting.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	policy   httpx.RetryPolicy
}

// NewHTTPProvider posts meeting requests to endpoint.
func NewHTTPProvider(endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{endpoint: endpoint, client: client, policy: httpx.DefaultRetryPolicy()}
}

func (p *HTTPProvider) WithRetryPolicy(policy httpx.RetryPolicy) *HTTPProvider {
	p.policy = policy
	return p
}

func (p *HTTPProvider) CreateMeeting(ctx context.Context, booking ledger.Booking) (string, error) {
	if strings.TrimSpace(p.endpoint) == "" {
		return "", errors.New("meeting: endpoint not configured")
	}
	startsAt, err := time.Parse("2006-01-02 15:04", booking.Date+" "+booking.Start)
	if err != nil {
		return "", fmt.Errorf("meeting: parse start: %w", err)
	}
	payload, err := json.Marshal(meetingRequest{
		BookingID:    booking.ID,
		Confirmation: booking.ConfirmationToken,
		TherapistID:  booking.TherapistID,
		SeekerID:     booking.SeekerID,
		StartsAt:     startsAt,
		Minutes:      int(booking.Duration),
	})
	if err != nil {
		return "", fmt.Errorf("meeting: encode request: %w", err)
	}

	var out meetingResponse
	err = httpx.DoJSON(ctx, p.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", booking.ConfirmationToken)
		return req, nil
	}, p.policy, &out)
	if err != nil {
		return "", fmt.Errorf("meeting: create: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("meeting: provider returned no url")
	}
	return out.URL, nil
}
