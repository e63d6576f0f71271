// Package schedule keeps a rolling window of bookable slots open for every
// therapist.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Calendar is the catalog surface the roller drives.
type Calendar interface {
	Snapshot() []catalog.TherapistProfile
	GenerateSlots(therapistID string, tmpl catalog.SlotTemplate, from time.Time, days int) ([]catalog.AvailabilitySlot, error)
}

// Roller generates template slots on a cron schedule.
type Roller struct {
	calendar Calendar
	template catalog.SlotTemplate
	days     int
	spec     string
	now      func() time.Time
	logger   *logging.Logger
}

func NewRoller(calendar Calendar, logger *logging.Logger) *Roller {
	if calendar == nil {
		panic("schedule: calendar required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Roller{
		calendar: calendar,
		template: catalog.DefaultSlotTemplate(),
		days:     7,
		spec:     "@daily",
		now:      time.Now,
		logger:   logger,
	}
}

func (r *Roller) WithTemplate(tmpl catalog.SlotTemplate) *Roller {
	if len(tmpl.Starts) > 0 {
		r.template = tmpl
	}
	return r
}

func (r *Roller) WithWindow(days int) *Roller {
	if days > 0 {
		r.days = days
	}
	return r
}

func (r *Roller) WithSpec(spec string) *Roller {
	if spec != "" {
		r.spec = spec
	}
	return r
}

func (r *Roller) WithClock(now func() time.Time) *Roller {
	if now != nil {
		r.now = now
	}
	return r
}

// RollOnce fills the window for every therapist, starting today in the
// therapist's own timezone. It returns how many slots were added.
func (r *Roller) RollOnce() (int, error) {
	now := r.now()
	added := 0
	var errs []error
	for _, p := range r.calendar.Snapshot() {
		from := now
		if p.Timezone != "" {
			if loc, err := time.LoadLocation(p.Timezone); err == nil {
				from = now.In(loc)
			}
		}
		slots, err := r.calendar.GenerateSlots(p.ID, r.template, from, r.days)
		added += len(slots)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule: roll %s: %w", p.ID, err))
		}
	}
	return added, errors.Join(errs...)
}

// Run rolls once immediately and then on every cron tick until ctx is
// cancelled. An invalid spec is returned before anything runs.
func (r *Roller) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.spec, r.tick); err != nil {
		return fmt.Errorf("schedule: invalid spec %q: %w", r.spec, err)
	}
	r.tick()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Roller) tick() {
	added, err := r.RollOnce()
	if err != nil {
		r.logger.Error("slot rollover failed", "error", err, "added", added)
		return
	}
	if added > 0 {
		r.logger.Info("slot rollover complete", "added", added, "window_days", r.days)
	}
}
