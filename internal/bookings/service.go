// Package bookings orchestrates the ledger with the booking archive and
// post-confirmation follow-ups.
package bookings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
	"github.com/wolfman30/virevamind/pkg/logging"
)

var bookingsTracer = otel.Tracer("virevamind.internal.bookings")

// Archive persists bookings beyond the in-memory ledger.
type Archive interface {
	Insert(ctx context.Context, b ledger.Booking) error
	MarkCancelled(ctx context.Context, confirmationToken string, at time.Time) (bool, error)
	GetByToken(ctx context.Context, confirmationToken string) (ledger.Booking, error)
}

// Followups receives confirmed bookings for asynchronous handling.
type Followups interface {
	Dispatch(b ledger.Booking) bool
}

// Service is the booking surface used by the transport layer.
type Service struct {
	ledger    *ledger.Ledger
	archive   Archive
	followups Followups
	metrics   *metrics.LedgerMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService constructs a bookings service.
func NewService(l *ledger.Ledger, logger *logging.Logger) *Service {
	if l == nil {
		panic("bookings: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{ledger: l, logger: logger, now: l.Now}
}

func (s *Service) WithArchive(a Archive) *Service {
	s.archive = a
	return s
}

func (s *Service) WithFollowups(f Followups) *Service {
	s.followups = f
	return s
}

func (s *Service) WithMetrics(m *metrics.LedgerMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func()) {
	ctx, span := bookingsTracer.Start(ctx, "bookings."+op)
	span.SetAttributes(attrs...)
	began := time.Now()
	return ctx, span, func() {
		s.metrics.ObserveLatency(op, time.Since(began).Seconds())
		span.End()
	}
}

// Reserve holds a slot for a seeker.
func (s *Service) Reserve(ctx context.Context, slotID, seekerID string) (ledger.Hold, error) {
	ctx, span, end := s.start(ctx, "reserve", attribute.String("vireva.slot_id", slotID))
	defer end()

	hold, err := s.ledger.Reserve(ctx, slotID, seekerID)
	if err != nil {
		span.RecordError(err)
		return ledger.Hold{}, err
	}
	return hold, nil
}

// Confirm books a held slot. Archive and follow-up failures are logged and
// never fail the confirmation.
func (s *Service) Confirm(ctx context.Context, holdToken string) (ledger.Booking, error) {
	ctx, span, end := s.start(ctx, "confirm")
	defer end()

	b, err := s.ledger.Confirm(ctx, holdToken)
	if err != nil {
		span.RecordError(err)
		return ledger.Booking{}, err
	}
	span.SetAttributes(
		attribute.String("vireva.booking_id", b.ID),
		attribute.String("vireva.therapist_id", b.TherapistID),
	)

	if s.archive != nil {
		if err := s.archive.Insert(ctx, b); err != nil {
			s.metrics.ObserveFollowup("archive", "error")
			s.logger.Error("booking archive insert failed", "error", err, "booking_id", b.ID)
		} else {
			s.metrics.ObserveFollowup("archive", "ok")
		}
	}
	if s.followups != nil {
		s.followups.Dispatch(b)
	}
	return b, nil
}

// Cancel cancels a booking. Repeated cancels succeed. Bookings from earlier
// runs are only in the archive; those are cancelled there.
func (s *Service) Cancel(ctx context.Context, confirmationToken string) (ledger.Booking, error) {
	ctx, span, end := s.start(ctx, "cancel")
	defer end()

	b, transitioned, err := s.ledger.CancelBooking(ctx, confirmationToken)
	if errors.Is(err, ledger.ErrBookingNotFound) && s.archive != nil {
		b, err = s.cancelArchived(ctx, confirmationToken)
	}
	if err != nil {
		span.RecordError(err)
		return ledger.Booking{}, err
	}
	span.SetAttributes(attribute.String("vireva.booking_id", b.ID))

	if transitioned && s.archive != nil {
		if _, err := s.archive.MarkCancelled(ctx, confirmationToken, *b.CancelledAt); err != nil {
			s.logger.Error("booking archive cancel failed", "error", err, "booking_id", b.ID)
		}
	}
	return b, nil
}

func (s *Service) cancelArchived(ctx context.Context, confirmationToken string) (ledger.Booking, error) {
	b, err := s.archive.GetByToken(ctx, confirmationToken)
	if err != nil {
		return ledger.Booking{}, err
	}
	if b.Status == ledger.BookingCancelled {
		return b, nil
	}
	at := s.now()
	changed, err := s.archive.MarkCancelled(ctx, confirmationToken, at)
	if err != nil {
		return ledger.Booking{}, err
	}
	if !changed {
		// Lost a race with another cancel; report the stored row.
		return s.archive.GetByToken(ctx, confirmationToken)
	}
	b.Status = ledger.BookingCancelled
	b.CancelledAt = &at
	s.logger.Info("archived booking cancelled", "booking_id", b.ID, "slot_id", b.SlotID)
	return b, nil
}

// Release abandons a hold.
func (s *Service) Release(ctx context.Context, holdToken string) error {
	ctx, span, end := s.start(ctx, "release")
	defer end()

	if err := s.ledger.Release(ctx, holdToken); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Booking looks a booking up in the ledger and falls back to the archive
// for bookings from earlier runs.
func (s *Service) Booking(ctx context.Context, confirmationToken string) (ledger.Booking, error) {
	ctx, span, end := s.start(ctx, "get")
	defer end()

	b, err := s.ledger.Booking(confirmationToken)
	if err == nil || !errors.Is(err, ledger.ErrBookingNotFound) || s.archive == nil {
		return b, err
	}
	b, err = s.archive.GetByToken(ctx, confirmationToken)
	if err != nil {
		span.RecordError(err)
		return ledger.Booking{}, err
	}
	return b, nil
}

// HoldStatus reports on a hold token.
func (s *Service) HoldStatus(holdToken string) (ledger.Hold, error) {
	return s.ledger.HoldStatus(holdToken)
}
