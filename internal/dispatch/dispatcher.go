// Package dispatch runs post-confirmation follow-ups (meeting link, seeker
// notification) off the booking path.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/internal/meeting"
	"github.com/wolfman30/virevamind/internal/notify"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Directory resolves therapist names for notifications.
type Directory interface {
	Get(id string) (catalog.TherapistProfile, error)
}

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 16
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}

// Dispatcher is a bounded worker pool. Dispatch never blocks; a full queue
// drops the follow-up and counts it.
type Dispatcher struct {
	cfg       Config
	meetings  meeting.Provider
	notifier  notify.Notifier
	directory Directory
	metrics   *metrics.LedgerMetrics
	logger    *logging.Logger

	jobs   chan ledger.Booking
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// New starts cfg.Workers workers. meetings and directory may be nil.
func New(cfg Config, meetings meeting.Provider, notifier notify.Notifier, directory Directory, logger *logging.Logger) *Dispatcher {
	if notifier == nil {
		panic("dispatch: notifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:       cfg,
		meetings:  meetings,
		notifier:  notifier,
		directory: directory,
		logger:    logger,
		jobs:      make(chan ledger.Booking, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.LedgerMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch queues follow-ups for b and reports whether they were accepted.
func (d *Dispatcher) Dispatch(b ledger.Booking) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.ObserveFollowup("enqueue", "closed")
		return false
	}
	select {
	case d.jobs <- b:
		d.metrics.ObserveFollowup("enqueue", "ok")
		return true
	default:
		d.metrics.ObserveFollowup("enqueue", "dropped")
		d.logger.Warn("dispatch queue full, dropping follow-up", "booking_id", b.ID)
		return false
	}
}

// Close stops accepting work and waits for queued follow-ups to finish or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for b := range d.jobs {
		d.process(b)
	}
}

func (d *Dispatcher) process(b ledger.Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()
	logger := d.logger.With("booking_id", b.ID, "therapist_id", b.TherapistID)

	c := notify.Confirmation{Booking: b}
	if strings.Contains(b.SeekerID, "@") {
		c.SeekerEmail = b.SeekerID
	}
	if d.directory != nil {
		if p, err := d.directory.Get(b.TherapistID); err == nil {
			c.TherapistName = p.Name
		}
	}

	if d.meetings != nil {
		url, err := d.meetings.CreateMeeting(ctx, b)
		if err != nil {
			d.metrics.ObserveFollowup("meeting", "error")
			logger.Error("meeting link creation failed", "error", err)
		} else {
			d.metrics.ObserveFollowup("meeting", "ok")
			c.MeetingURL = url
		}
	}

	if err := d.notifier.Send(ctx, c); err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		d.metrics.ObserveFollowup("notify", status)
		logger.Error("booking notification failed", "error", err)
		return
	}
	d.metrics.ObserveFollowup("notify", "ok")
	logger.Info("booking follow-up sent", "meeting_url", c.MeetingURL != "")
}
