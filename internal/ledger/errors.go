package ledger

import "errors"

var (
	// ErrSlotUnavailable is returned when a slot is not open for a new hold.
	ErrSlotUnavailable = errors.New("ledger: slot unavailable")
	// ErrHoldExpired is returned when a hold's TTL elapsed before confirmation.
	ErrHoldExpired = errors.New("ledger: hold expired")
	// ErrHoldNotFound is returned for unknown, released or consumed hold tokens.
	ErrHoldNotFound = errors.New("ledger: hold not found")
	// ErrBookingNotFound is returned for unknown confirmation tokens.
	ErrBookingNotFound = errors.New("ledger: booking not found")
)
