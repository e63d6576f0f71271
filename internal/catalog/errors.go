package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a therapist or slot id is unknown.
	ErrNotFound = errors.New("catalog: not found")
	// ErrSlotOverlap is returned when a new slot intersects an existing one.
	ErrSlotOverlap = errors.New("catalog: slot overlaps existing slot")
	// ErrStatusConflict is returned when a slot is not in the expected status.
	ErrStatusConflict = errors.New("catalog: slot status conflict")
	// ErrInvalidTransition is returned for slot transitions outside the lifecycle.
	ErrInvalidTransition = errors.New("catalog: invalid slot transition")
)

// ValidationError reports bad input shape on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
