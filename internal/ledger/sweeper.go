package ledger

import (
	"context"
	"time"

	"github.com/wolfman30/virevamind/pkg/logging"
)

// Sweeper periodically expires stale holds so abandoned slots reopen even
// when nobody touches them.
type Sweeper struct {
	ledger   *Ledger
	logger   *logging.Logger
	interval time.Duration
}

func NewSweeper(l *Ledger, logger *logging.Logger) *Sweeper {
	if l == nil {
		panic("ledger: sweeper requires a ledger")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{ledger: l, logger: logger, interval: 5 * time.Second}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if n := s.ledger.ExpireHolds(s.ledger.now()); n > 0 {
		s.logger.Info("expired stale holds", "count", n)
	}
}
