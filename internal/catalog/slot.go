package catalog

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	StartLayout = "15:04"
)

// SessionDuration is a bookable session length in minutes.
type SessionDuration int

const (
	Duration30 SessionDuration = 30
	Duration60 SessionDuration = 60
	Duration90 SessionDuration = 90
)

// Durations lists every bookable session length.
var Durations = []SessionDuration{Duration30, Duration60, Duration90}

func (d SessionDuration) Valid() bool {
	switch d {
	case Duration30, Duration60, Duration90:
		return true
	}
	return false
}

func (d SessionDuration) Duration() time.Duration {
	return time.Duration(d) * time.Minute
}

// SlotStatus is the reservation state of a slot.
type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotHeld      SlotStatus = "held"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
)

// transitions lists the only legal status moves.
var transitions = map[SlotStatus][]SlotStatus{
	SlotOpen:      {SlotHeld},
	SlotHeld:      {SlotOpen, SlotBooked},
	SlotBooked:    {SlotCancelled},
	SlotCancelled: {SlotOpen},
}

func canTransition(from, to SlotStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AvailabilitySlot is a bookable window on one therapist's calendar.
type AvailabilitySlot struct {
	ID          string          `json:"id"`
	TherapistID string          `json:"therapist_id"`
	Date        string          `json:"date"`
	Start       string          `json:"start"`
	Duration    SessionDuration `json:"duration_minutes"`
	Status      SlotStatus      `json:"status"`
}

// Window returns the [start, end) interval of the slot on a naive UTC clock.
func (s AvailabilitySlot) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout+" "+StartLayout, s.Date+" "+s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(s.Duration.Duration()), nil
}

// SlotID derives the stable id of a therapist's slot at date/start.
func SlotID(therapistID, date, start string) string {
	return fmt.Sprintf("%s-%s-%s", therapistID, date, strings.ReplaceAll(start, ":", ""))
}

func (s AvailabilitySlot) validate() error {
	if strings.TrimSpace(s.TherapistID) == "" {
		return invalid("therapist_id", "is required")
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	if _, err := time.Parse(StartLayout, s.Start); err != nil {
		return invalid("start", "must be HH:MM")
	}
	if !s.Duration.Valid() {
		return invalid("duration_minutes", "must be one of 30, 60, 90")
	}
	return nil
}

func overlaps(a, b AvailabilitySlot) bool {
	aStart, aEnd, errA := a.Window()
	bStart, bEnd, errB := b.Window()
	if errA != nil || errB != nil {
		return false
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SlotTemplate describes a recurring daily set of slots.
type SlotTemplate struct {
	Starts   []string
	Duration SessionDuration
}

// DefaultSlotTemplate is the standard daily schedule offered to seekers.
func DefaultSlotTemplate() SlotTemplate {
	return SlotTemplate{
		Starts:   []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"},
		Duration: Duration60,
	}
}
