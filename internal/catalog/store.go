package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/virevamind/pkg/logging"
)

// SortKey orders query results. The zero value keeps insertion order.
type SortKey string

const (
	SortInsertion SortKey = ""
	SortRating    SortKey = "rating"
	SortSessions  SortKey = "sessions"
	SortName      SortKey = "name"
)

// ParseSortKey validates a user supplied sort key.
func ParseSortKey(raw string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(raw))); key {
	case SortInsertion, SortRating, SortSessions, SortName:
		return key, nil
	default:
		return "", invalid("sort", "must be one of rating, sessions, name")
	}
}

type queryOptions struct {
	sort SortKey
}

// QueryOption tunes a Query call.
type QueryOption func(*queryOptions)

// SortBy orders results by key. Ties keep insertion order.
func SortBy(key SortKey) QueryOption {
	return func(o *queryOptions) { o.sort = key }
}

// Predicate selects profiles. A nil predicate selects everything.
type Predicate func(TherapistProfile) bool

// Store owns therapist profiles and their availability slots.
type Store struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]TherapistProfile
	slots    map[string]AvailabilitySlot
	calendar map[string][]string // therapist id -> slot ids

	hooks  []func(TherapistProfile)
	now    func() time.Time
	logger *logging.Logger
}

// NewStore returns an empty catalog.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		profiles: make(map[string]TherapistProfile),
		slots:    make(map[string]AvailabilitySlot),
		calendar: make(map[string][]string),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithClock overrides the timestamp source used for UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// OnUpsert registers a hook invoked after every successful profile write.
// Hooks run outside the store lock.
func (s *Store) OnUpsert(fn func(TherapistProfile)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Get returns a copy of the profile with the given id.
func (s *Store) Get(id string) (TherapistProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return TherapistProfile{}, fmt.Errorf("therapist %q: %w", id, ErrNotFound)
	}
	return p.clone(), nil
}

// Len reports the number of profiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot copies every profile in insertion order.
func (s *Store) Snapshot() []TherapistProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TherapistProfile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id].clone())
	}
	return out
}

// Query lazily yields the profiles matching pred. The snapshot is taken when
// Query is called, so later writes never show up in an iteration in progress.
func (s *Store) Query(pred Predicate, opts ...QueryOption) iter.Seq[TherapistProfile] {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	snapshot := s.Snapshot()
	sortProfiles(snapshot, o.sort)

	return func(yield func(TherapistProfile) bool) {
		for _, p := range snapshot {
			if pred != nil && !pred(p) {
				continue
			}
			if !yield(p.clone()) {
				return
			}
		}
	}
}

func sortProfiles(profiles []TherapistProfile, key SortKey) {
	switch key {
	case SortRating:
		slices.SortStableFunc(profiles, func(a, b TherapistProfile) int { return cmp.Compare(b.Rating, a.Rating) })
	case SortSessions:
		slices.SortStableFunc(profiles, func(a, b TherapistProfile) int { return cmp.Compare(b.Sessions, a.Sessions) })
	case SortName:
		slices.SortStableFunc(profiles, func(a, b TherapistProfile) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	}
}

type upsertMode int

const (
	upsertAdmin upsertMode = iota
	upsertSeed
	upsertRestore
)

// Upsert inserts or updates a profile. CBT profiles must carry a license
// number. Identity fields of an existing profile cannot change. The
// verification status is ignored: new profiles start pending and only
// SetVerification moves them on.
func (s *Store) Upsert(profile TherapistProfile) (TherapistProfile, error) {
	return s.upsert(profile, upsertAdmin)
}

// restore writes a mirrored profile as it was saved, including its
// verification status and review counters.
func (s *Store) restore(profile TherapistProfile) (TherapistProfile, error) {
	return s.upsert(profile, upsertRestore)
}

func (s *Store) upsert(profile TherapistProfile, mode upsertMode) (TherapistProfile, error) {
	p := profile.normalized()
	if mode == upsertAdmin {
		p.Verification = ""
	}

	s.mu.Lock()
	existing, found := s.profiles[p.ID]
	if found && p.LicenseNumber == "" {
		p.LicenseNumber = existing.LicenseNumber
	}
	if err := p.validate(); err != nil {
		s.mu.Unlock()
		return TherapistProfile{}, err
	}
	if found && mode != upsertRestore {
		if err := checkIdentity(existing, p); err != nil {
			s.mu.Unlock()
			return TherapistProfile{}, err
		}
		p.Rating = existing.Rating
		p.Sessions = existing.Sessions
	}
	if !found || mode == upsertRestore {
		if p.Rating < 0 || p.Rating > 5 {
			s.mu.Unlock()
			return TherapistProfile{}, invalid("rating", "must be between 0 and 5")
		}
		if p.Sessions < 0 {
			s.mu.Unlock()
			return TherapistProfile{}, invalid("sessions", "cannot be negative")
		}
	}
	if p.Verification == "" {
		p.Verification = VerificationPending
		if found {
			p.Verification = existing.Verification
		}
	}
	if !found {
		s.order = append(s.order, p.ID)
	}
	if mode != upsertRestore || p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.profiles[p.ID] = p.clone()
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	s.notify(hooks, p)
	return p.clone(), nil
}

func checkIdentity(existing, next TherapistProfile) error {
	if existing.Name != next.Name {
		return invalid("name", "cannot change once registered")
	}
	if existing.Certification != next.Certification {
		return invalid("certification", "cannot change once registered")
	}
	if existing.LicenseNumber != "" && next.LicenseNumber != "" && existing.LicenseNumber != next.LicenseNumber {
		return invalid("license_number", "cannot change once registered")
	}
	return nil
}

// SetVerification records the outcome of a credential check.
func (s *Store) SetVerification(id string, status VerificationStatus) (TherapistProfile, error) {
	if !status.Valid() {
		return TherapistProfile{}, invalid("verification", "must be one of pending, verified, failed")
	}
	return s.mutate(id, func(p *TherapistProfile) error {
		p.Verification = status
		return nil
	})
}

// RecordReview folds one review score into the running rating.
func (s *Store) RecordReview(id string, rating float64) (TherapistProfile, error) {
	if rating < 1 || rating > 5 || math.IsNaN(rating) {
		return TherapistProfile{}, invalid("rating", "must be between 1 and 5")
	}
	return s.mutate(id, func(p *TherapistProfile) error {
		total := p.Rating*float64(p.Sessions) + rating
		p.Sessions++
		p.Rating = math.Round(total/float64(p.Sessions)*100) / 100
		return nil
	})
}

func (s *Store) mutate(id string, fn func(*TherapistProfile) error) (TherapistProfile, error) {
	s.mu.Lock()
	p, ok := s.profiles[id]
	if !ok {
		s.mu.Unlock()
		return TherapistProfile{}, fmt.Errorf("therapist %q: %w", id, ErrNotFound)
	}
	p = p.clone()
	if err := fn(&p); err != nil {
		s.mu.Unlock()
		return TherapistProfile{}, err
	}
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	s.notify(hooks, p)
	return p.clone(), nil
}

func (s *Store) notify(hooks []func(TherapistProfile), p TherapistProfile) {
	for _, hook := range hooks {
		hook(p.clone())
	}
}

// AddSlot registers an open slot. The slot may not overlap any other slot
// of the same therapist.
func (s *Store) AddSlot(slot AvailabilitySlot) (AvailabilitySlot, error) {
	slot.TherapistID = strings.TrimSpace(slot.TherapistID)
	slot.ID = strings.TrimSpace(slot.ID)
	if err := slot.validate(); err != nil {
		return AvailabilitySlot{}, err
	}
	if slot.ID == "" {
		slot.ID = SlotID(slot.TherapistID, slot.Date, slot.Start)
	}
	slot.Status = SlotOpen

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[slot.TherapistID]; !ok {
		return AvailabilitySlot{}, fmt.Errorf("therapist %q: %w", slot.TherapistID, ErrNotFound)
	}
	for _, id := range s.calendar[slot.TherapistID] {
		if other := s.slots[id]; overlaps(slot, other) {
			return AvailabilitySlot{}, fmt.Errorf("%s %s conflicts with %s: %w", slot.Date, slot.Start, other.ID, ErrSlotOverlap)
		}
	}
	if _, dup := s.slots[slot.ID]; dup {
		return AvailabilitySlot{}, invalid("id", "is already in use")
	}
	s.slots[slot.ID] = slot
	s.calendar[slot.TherapistID] = append(s.calendar[slot.TherapistID], slot.ID)
	return slot, nil
}

// Slot returns the slot with the given id.
func (s *Store) Slot(id string) (AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return AvailabilitySlot{}, fmt.Errorf("slot %q: %w", id, ErrNotFound)
	}
	return slot, nil
}

// Slots lists a therapist's slots ordered by date and start time. An empty
// date lists every day.
func (s *Store) Slots(therapistID, date string) ([]AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.profiles[therapistID]; !ok {
		return nil, fmt.Errorf("therapist %q: %w", therapistID, ErrNotFound)
	}
	out := make([]AvailabilitySlot, 0, len(s.calendar[therapistID]))
	for _, id := range s.calendar[therapistID] {
		slot := s.slots[id]
		if date != "" && slot.Date != date {
			continue
		}
		out = append(out, slot)
	}
	slices.SortFunc(out, func(a, b AvailabilitySlot) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.Start, b.Start))
	})
	return out, nil
}

// TransitionSlot moves a slot from one status to another atomically. It
// fails with ErrStatusConflict if the slot is not currently in from.
func (s *Store) TransitionSlot(id string, from, to SlotStatus) (AvailabilitySlot, error) {
	if !canTransition(from, to) {
		return AvailabilitySlot{}, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return AvailabilitySlot{}, fmt.Errorf("slot %q: %w", id, ErrNotFound)
	}
	if slot.Status != from {
		return slot, fmt.Errorf("slot %q is %s, want %s: %w", id, slot.Status, from, ErrStatusConflict)
	}
	slot.Status = to
	s.slots[id] = slot
	return slot, nil
}

// RemoveSlot deletes an open slot.
func (s *Store) RemoveSlot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("slot %q: %w", id, ErrNotFound)
	}
	if slot.Status != SlotOpen {
		return fmt.Errorf("slot %q is %s: %w", id, slot.Status, ErrStatusConflict)
	}
	delete(s.slots, id)
	s.calendar[slot.TherapistID] = slices.DeleteFunc(s.calendar[slot.TherapistID], func(v string) bool { return v == id })
	return nil
}

// GenerateSlots adds the template's daily slots for days consecutive days
// starting at from. Slots that would overlap existing ones are skipped, so
// the call is safe to repeat.
func (s *Store) GenerateSlots(therapistID string, tmpl SlotTemplate, from time.Time, days int) ([]AvailabilitySlot, error) {
	if days <= 0 {
		return nil, invalid("days", "must be positive")
	}
	if _, err := s.Get(therapistID); err != nil {
		return nil, err
	}
	var added []AvailabilitySlot
	for d := 0; d < days; d++ {
		date := from.AddDate(0, 0, d).Format(DateLayout)
		for _, start := range tmpl.Starts {
			slot, err := s.AddSlot(AvailabilitySlot{
				TherapistID: therapistID,
				Date:        date,
				Start:       start,
				Duration:    tmpl.Duration,
			})
			switch {
			case err == nil:
				added = append(added, slot)
			case errors.Is(err, ErrSlotOverlap):
				continue
			default:
				return added, err
			}
		}
	}
	if len(added) > 0 {
		s.logger.Debug("catalog slots generated", "therapist_id", therapistID, "count", len(added))
	}
	return added, nil
}
