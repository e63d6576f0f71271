package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
	"github.com/wolfman30/virevamind/pkg/logging"
)

const (
	DefaultHoldTTL            = 120 * time.Second
	DefaultTombstoneRetention = time.Hour
)

// SlotStore is the slice of the catalog the ledger drives. TransitionSlot
// must be an atomic compare-and-swap on slot status.
type SlotStore interface {
	Slot(id string) (catalog.AvailabilitySlot, error)
	TransitionSlot(id string, from, to catalog.SlotStatus) (catalog.AvailabilitySlot, error)
}

// Hold is a time-limited claim on a slot pending confirmation.
type Hold struct {
	Token       string                  `json:"token"`
	SlotID      string                  `json:"slot_id"`
	TherapistID string                  `json:"therapist_id"`
	SeekerID    string                  `json:"seeker_id"`
	Duration    catalog.SessionDuration `json:"duration_minutes"`
	CreatedAt   time.Time               `json:"created_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a confirmed reservation. Only Status and CancelledAt change
// after creation.
type Booking struct {
	ID                string                  `json:"id"`
	ConfirmationToken string                  `json:"confirmation_token"`
	SlotID            string                  `json:"slot_id"`
	TherapistID       string                  `json:"therapist_id"`
	SeekerID          string                  `json:"seeker_id"`
	Date              string                  `json:"date"`
	Start             string                  `json:"start"`
	Duration          catalog.SessionDuration `json:"duration_minutes"`
	Price             Money                   `json:"price"`
	Status            BookingStatus           `json:"status"`
	CreatedAt         time.Time               `json:"created_at"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
}

type holdState int

const (
	holdLive holdState = iota
	holdConsumed
	holdReleased
	holdExpired
)

// holdEntry and bookingEntry are only mutated under their slot's lock.
type holdEntry struct {
	hold      Hold
	state     holdState
	settledAt time.Time
}

type bookingEntry struct {
	booking Booking
}

// Ledger is the reservation state machine for catalog slots:
// open -> held -> booked, held -> open, booked -> cancelled -> open.
type Ledger struct {
	slots     SlotStore
	prices    PriceTable
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	metrics   *metrics.LedgerMetrics
	logger    *logging.Logger

	locks    lockTable
	holds    sync.Map // hold token -> *holdEntry
	live     sync.Map // slot id -> live hold token
	bookings sync.Map // confirmation token -> *bookingEntry
}

// New constructs a ledger over slots.
func New(slots SlotStore, prices PriceTable, logger *logging.Logger) *Ledger {
	if slots == nil {
		panic("ledger: slot store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if prices.prices == nil {
		prices = DefaultPriceTable("")
	}
	return &Ledger{
		slots:     slots,
		prices:    prices,
		ttl:       DefaultHoldTTL,
		retention: DefaultTombstoneRetention,
		now:       time.Now,
		logger:    logger,
	}
}

func (l *Ledger) WithHoldTTL(d time.Duration) *Ledger {
	if d > 0 {
		l.ttl = d
	}
	return l
}

// WithTombstoneRetention sets how long expired hold tokens keep reporting
// ErrHoldExpired before they are forgotten.
func (l *Ledger) WithTombstoneRetention(d time.Duration) *Ledger {
	if d > 0 {
		l.retention = d
	}
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *Ledger) WithMetrics(m *metrics.LedgerMetrics) *Ledger {
	l.metrics = m
	return l
}

// HoldTTL reports the configured hold lifetime.
// Now reads the ledger's clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

func (l *Ledger) HoldTTL() time.Duration {
	return l.ttl
}

// Prices exposes the configured price table.
func (l *Ledger) Prices() PriceTable {
	return l.prices
}

func newToken(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Reserve places a hold on an open slot. Exactly one of any number of
// concurrent callers on the same open slot succeeds.
func (l *Ledger) Reserve(ctx context.Context, slotID, seekerID string) (Hold, error) {
	seekerID = strings.TrimSpace(seekerID)
	if seekerID == "" {
		return Hold{}, &catalog.ValidationError{Field: "seeker_id", Reason: "is required"}
	}
	if err := ctx.Err(); err != nil {
		return Hold{}, err
	}

	unlock := l.locks.lock(slotID)
	defer unlock()

	slot, err := l.slots.Slot(slotID)
	if err != nil {
		l.metrics.ObserveReserve("not_found")
		return Hold{}, err
	}
	now := l.now()
	if slot.Status == catalog.SlotHeld && l.expireIfStale(slotID, now) {
		slot.Status = catalog.SlotOpen
	}
	if slot.Status != catalog.SlotOpen {
		l.metrics.ObserveReserve("slot_unavailable")
		return Hold{}, ErrSlotUnavailable
	}
	if _, err := l.slots.TransitionSlot(slotID, catalog.SlotOpen, catalog.SlotHeld); err != nil {
		if errors.Is(err, catalog.ErrStatusConflict) {
			l.metrics.ObserveReserve("slot_unavailable")
			return Hold{}, ErrSlotUnavailable
		}
		return Hold{}, fmt.Errorf("ledger: reserve %s: %w", slotID, err)
	}

	hold := Hold{
		Token:       newToken("hold"),
		SlotID:      slotID,
		TherapistID: slot.TherapistID,
		SeekerID:    seekerID,
		Duration:    slot.Duration,
		CreatedAt:   now,
		ExpiresAt:   now.Add(l.ttl),
	}
	l.holds.Store(hold.Token, &holdEntry{hold: hold})
	l.live.Store(slotID, hold.Token)
	l.metrics.ObserveReserve("ok")
	l.logger.Debug("slot held", "slot_id", slotID, "seeker_id", seekerID, "expires_at", hold.ExpiresAt)
	return hold, nil
}

// Confirm turns a live hold into a booking. The hold token is consumed on
// success; an elapsed hold reverts its slot to open and fails fast.
func (l *Ledger) Confirm(ctx context.Context, holdToken string) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	e, ok := l.loadHold(holdToken)
	if !ok {
		l.metrics.ObserveConfirm("hold_not_found")
		return Booking{}, ErrHoldNotFound
	}

	unlock := l.locks.lock(e.hold.SlotID)
	defer unlock()

	now := l.now()
	if err := l.checkLive(e, now); err != nil {
		l.metrics.ObserveConfirm(outcome(err))
		return Booking{}, err
	}

	slot, err := l.slots.Slot(e.hold.SlotID)
	if err != nil {
		return Booking{}, fmt.Errorf("ledger: confirm %s: %w", e.hold.SlotID, err)
	}
	price, err := l.prices.Price(slot.Duration)
	if err != nil {
		return Booking{}, err
	}
	if _, err := l.slots.TransitionSlot(slot.ID, catalog.SlotHeld, catalog.SlotBooked); err != nil {
		return Booking{}, fmt.Errorf("ledger: confirm %s: %w", slot.ID, err)
	}

	booking := Booking{
		ID:                uuid.NewString(),
		ConfirmationToken: newToken("cnf"),
		SlotID:            slot.ID,
		TherapistID:       slot.TherapistID,
		SeekerID:          e.hold.SeekerID,
		Date:              slot.Date,
		Start:             slot.Start,
		Duration:          slot.Duration,
		Price:             price,
		Status:            BookingConfirmed,
		CreatedAt:         now,
	}
	e.state = holdConsumed
	e.settledAt = now
	l.holds.Delete(holdToken)
	l.live.CompareAndDelete(slot.ID, holdToken)
	l.bookings.Store(booking.ConfirmationToken, &bookingEntry{booking: booking})

	l.metrics.ObserveConfirm("ok")
	l.logger.Info("booking confirmed", "booking_id", booking.ID, "slot_id", slot.ID, "therapist_id", slot.TherapistID, "price", price.String())
	return booking, nil
}

// Cancel cancels a booking and reopens its slot. Cancelling an already
// cancelled booking succeeds without touching the slot again.
func (l *Ledger) Cancel(ctx context.Context, confirmationToken string) (Booking, error) {
	b, _, err := l.CancelBooking(ctx, confirmationToken)
	return b, err
}

// CancelBooking is Cancel that also reports whether this call moved the
// booking to cancelled.
func (l *Ledger) CancelBooking(ctx context.Context, confirmationToken string) (Booking, bool, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, false, err
	}
	e, ok := l.loadBooking(confirmationToken)
	if !ok {
		l.metrics.ObserveCancel("booking_not_found")
		return Booking{}, false, ErrBookingNotFound
	}

	unlock := l.locks.lock(e.booking.SlotID)
	defer unlock()

	if e.booking.Status == BookingCancelled {
		l.metrics.ObserveCancel("noop")
		return e.booking, false, nil
	}
	slotID := e.booking.SlotID
	if _, err := l.slots.TransitionSlot(slotID, catalog.SlotBooked, catalog.SlotCancelled); err != nil {
		return Booking{}, false, fmt.Errorf("ledger: cancel %s: %w", slotID, err)
	}
	if _, err := l.slots.TransitionSlot(slotID, catalog.SlotCancelled, catalog.SlotOpen); err != nil {
		return Booking{}, false, fmt.Errorf("ledger: reopen %s: %w", slotID, err)
	}
	now := l.now()
	e.booking.Status = BookingCancelled
	e.booking.CancelledAt = &now

	l.metrics.ObserveCancel("ok")
	l.logger.Info("booking cancelled", "booking_id", e.booking.ID, "slot_id", slotID)
	return e.booking, true, nil
}

// Release abandons a hold early. Unknown, expired, released and consumed
// holds are a no-op.
func (l *Ledger) Release(ctx context.Context, holdToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := l.loadHold(holdToken)
	if !ok {
		return nil
	}

	unlock := l.locks.lock(e.hold.SlotID)
	defer unlock()

	if e.state != holdLive {
		return nil
	}
	now := l.now()
	if !now.Before(e.hold.ExpiresAt) {
		l.expireLocked(e, now)
		return nil
	}
	if _, err := l.slots.TransitionSlot(e.hold.SlotID, catalog.SlotHeld, catalog.SlotOpen); err != nil {
		return fmt.Errorf("ledger: release %s: %w", e.hold.SlotID, err)
	}
	e.state = holdReleased
	e.settledAt = now
	l.holds.Delete(holdToken)
	l.live.CompareAndDelete(e.hold.SlotID, holdToken)
	l.metrics.ObserveRelease()
	return nil
}

// HoldStatus returns a live hold, ErrHoldExpired for an elapsed one, or
// ErrHoldNotFound.
func (l *Ledger) HoldStatus(holdToken string) (Hold, error) {
	e, ok := l.loadHold(holdToken)
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	unlock := l.locks.lock(e.hold.SlotID)
	defer unlock()
	if err := l.checkLive(e, l.now()); err != nil {
		return Hold{}, err
	}
	return e.hold, nil
}

// Booking looks up a booking by confirmation token.
func (l *Ledger) Booking(confirmationToken string) (Booking, error) {
	e, ok := l.loadBooking(confirmationToken)
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	unlock := l.locks.lock(e.booking.SlotID)
	defer unlock()
	return e.booking, nil
}

// ActiveHolds counts holds that have not been settled yet.
func (l *Ledger) ActiveHolds() int {
	n := 0
	l.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ExpireHolds reverts every hold whose TTL elapsed at now and forgets expired
// tokens older than the tombstone retention. It returns the number of holds
// expired by this call.
func (l *Ledger) ExpireHolds(now time.Time) int {
	var slotIDs []string
	l.live.Range(func(k, _ any) bool {
		slotIDs = append(slotIDs, k.(string))
		return true
	})
	expired := 0
	for _, slotID := range slotIDs {
		unlock := l.locks.lock(slotID)
		if l.expireIfStale(slotID, now) {
			expired++
		}
		unlock()
	}
	l.pruneTombstones(now)
	return expired
}

func (l *Ledger) pruneTombstones(now time.Time) {
	l.holds.Range(func(k, v any) bool {
		e := v.(*holdEntry)
		unlock := l.locks.lock(e.hold.SlotID)
		if e.state == holdExpired && now.Sub(e.settledAt) >= l.retention {
			l.holds.Delete(k)
		}
		unlock()
		return true
	})
}

// checkLive must be called with the hold's slot lock held.
func (l *Ledger) checkLive(e *holdEntry, now time.Time) error {
	switch e.state {
	case holdExpired:
		return ErrHoldExpired
	case holdConsumed, holdReleased:
		return ErrHoldNotFound
	}
	if !now.Before(e.hold.ExpiresAt) {
		l.expireLocked(e, now)
		return ErrHoldExpired
	}
	return nil
}

// expireIfStale must be called with the slot lock held.
func (l *Ledger) expireIfStale(slotID string, now time.Time) bool {
	token, ok := l.live.Load(slotID)
	if !ok {
		return false
	}
	e, ok := l.loadHold(token.(string))
	if !ok || e.state != holdLive || now.Before(e.hold.ExpiresAt) {
		return false
	}
	l.expireLocked(e, now)
	return true
}

// expireLocked must be called with the hold's slot lock held.
func (l *Ledger) expireLocked(e *holdEntry, now time.Time) {
	if _, err := l.slots.TransitionSlot(e.hold.SlotID, catalog.SlotHeld, catalog.SlotOpen); err != nil {
		l.logger.Warn("hold expiry could not reopen slot", "error", err, "slot_id", e.hold.SlotID)
	}
	e.state = holdExpired
	e.settledAt = now
	l.live.CompareAndDelete(e.hold.SlotID, e.hold.Token)
	l.metrics.ObserveExpired(1)
	l.logger.Debug("hold expired", "slot_id", e.hold.SlotID, "seeker_id", e.hold.SeekerID)
}

func (l *Ledger) loadHold(token string) (*holdEntry, bool) {
	v, ok := l.holds.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*holdEntry), true
}

func (l *Ledger) loadBooking(token string) (*bookingEntry, bool) {
	v, ok := l.bookings.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*bookingEntry), true
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, ErrHoldNotFound):
		return "hold_not_found"
	default:
		return "error"
	}
}
