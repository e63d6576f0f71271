package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Fanout sends each confirmation to every notifier concurrently. One
// notifier failing does not stop the others.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, c Confirmation) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, n := range f {
		if n == nil {
			continue
		}
		g.Go(func() error {
			if err := n.Send(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
