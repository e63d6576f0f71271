// Package notify tells seekers and downstream systems about confirmed
// bookings.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Confirmation is everything a notifier needs about a confirmed booking.
type Confirmation struct {
	Booking       ledger.Booking
	TherapistName string
	SeekerEmail   string
	SeekerName    string
	MeetingURL    string
}

// Notifier delivers a booking confirmation somewhere.
type Notifier interface {
	Send(ctx context.Context, c Confirmation) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Confirmation) error

func (f NotifierFunc) Send(ctx context.Context, c Confirmation) error { return f(ctx, c) }

// EmailNotifier emails the seeker a confirmation.
type EmailNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

func NewEmailNotifier(sender EmailSender, logger *logging.Logger) *EmailNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{sender: sender, logger: logger}
}

// Send skips seekers without an email address.
func (n *EmailNotifier) Send(ctx context.Context, c Confirmation) error {
	if !strings.Contains(c.SeekerEmail, "@") {
		n.logger.Debug("notify: seeker has no email address, skipping", "booking_id", c.Booking.ID)
		return nil
	}
	if err := n.sender.Send(ctx, RenderConfirmation(c)); err != nil {
		return fmt.Errorf("notify: email confirmation: %w", err)
	}
	return nil
}

// RenderConfirmation builds the seeker-facing confirmation email.
func RenderConfirmation(c Confirmation) EmailMessage {
	b := c.Booking
	therapist := c.TherapistName
	if therapist == "" {
		therapist = "your therapist"
	}
	when := sessionTime(b)
	meeting := "Your session link will follow in a separate message."
	if c.MeetingURL != "" {
		meeting = "Join your session: " + c.MeetingURL
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Your session with %s is confirmed.\n\n", therapist)
	fmt.Fprintf(&text, "When: %s (%d minutes)\n", when, b.Duration)
	fmt.Fprintf(&text, "Price: %s\n", b.Price)
	fmt.Fprintf(&text, "Confirmation: %s\n\n", b.ConfirmationToken)
	text.WriteString(meeting)
	text.WriteString("\n\nNeed to cancel? Use your confirmation code.\n\nVirevaMind")

	link := "<p>Your session link will follow in a separate message.</p>"
	if c.MeetingURL != "" {
		u := html.EscapeString(c.MeetingURL)
		link = fmt.Sprintf(`<p><a href="%s">Join your session</a></p>`, u)
	}
	body := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Your session with %s is confirmed</h2>
<p><strong>When:</strong> %s (%d minutes)<br><strong>Price:</strong> %s<br><strong>Confirmation:</strong> %s</p>
%s
<p style="color: #6b7280; font-size: 12px;">VirevaMind</p>
</div>`, html.EscapeString(therapist), html.EscapeString(when), b.Duration, html.EscapeString(b.Price.String()), html.EscapeString(b.ConfirmationToken), link)

	return EmailMessage{
		To:      c.SeekerEmail,
		ToName:  c.SeekerName,
		Subject: fmt.Sprintf("Session confirmed with %s", therapist),
		Body:    text.String(),
		HTML:    body,
	}
}

func sessionTime(b ledger.Booking) string {
	t, err := time.Parse(catalog.DateLayout+" "+catalog.StartLayout, b.Date+" "+b.Start)
	if err != nil {
		return b.Date + " " + b.Start
	}
	return t.Format("Monday, January 2 at 3:04 PM")
}
