package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wolfman30/virevamind/internal/catalog"
)

func TestSweeperReopensExpiredSlots(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	hold, err := f.ledger.Reserve(context.Background(), scenarioSlot, "seeker-a")
	require.NoError(t, err)
	f.clock.Advance(DefaultHoldTTL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(f.ledger, nil).WithInterval(5 * time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		slot, err := f.store.Slot(scenarioSlot)
		return err == nil && slot.Status == catalog.SlotOpen
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	_, err = f.ledger.Confirm(context.Background(), hold.Token)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewSweeper(f.ledger, nil).Run(ctx)
}

func TestNewSweeperRequiresLedger(t *testing.T) {
	assert.Panics(t, func() { NewSweeper(nil, nil) })
}
