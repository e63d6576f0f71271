package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const scenarioSlot = "T1-2025-06-01-0900"

type fixture struct {
	store  *catalog.Store
	ledger *Ledger
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := catalog.NewStore(nil)
	_, err := store.Upsert(catalog.TherapistProfile{ID: "T1", Name: "Dr. One", Certification: catalog.CertificationCBT, LicenseNumber: "LIC-1"})
	require.NoError(t, err)
	_, err = store.AddSlot(catalog.AvailabilitySlot{TherapistID: "T1", Date: "2025-06-01", Start: "09:00", Duration: catalog.Duration60})
	require.NoError(t, err)

	clock := newFakeClock()
	l := New(store, DefaultPriceTable("USD"), nil).WithClock(clock.Now)
	return &fixture{store: store, ledger: l, clock: clock}
}

func (f *fixture) addSlot(t *testing.T, start string, d catalog.SessionDuration) string {
	t.Helper()
	slot, err := f.store.AddSlot(catalog.AvailabilitySlot{TherapistID: "T1", Date: "2025-06-02", Start: start, Duration: d})
	require.NoError(t, err)
	return slot.ID
}

func (f *fixture) status(t *testing.T, slotID string) catalog.SlotStatus {
	t.Helper()
	slot, err := f.store.Slot(slotID)
	require.NoError(t, err)
	return slot.Status
}

func TestBookingLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	holdA, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	assert.Equal(t, catalog.SlotHeld, f.status(t, scenarioSlot))
	assert.Equal(t, f.clock.Now().Add(120*time.Second), holdA.ExpiresAt)

	_, err = f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.ErrorIs(t, err, ErrSlotUnavailable)

	booking, err := f.ledger.Confirm(ctx, holdA.Token)
	require.NoError(t, err)
	assert.True(t, booking.Price.Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "USD", booking.Price.Currency)
	assert.Equal(t, BookingConfirmed, booking.Status)
	assert.Equal(t, "seeker-a", booking.SeekerID)
	assert.Equal(t, "2025-06-01", booking.Date)
	assert.Equal(t, "09:00", booking.Start)
	assert.NotEmpty(t, booking.ConfirmationToken)
	assert.Equal(t, catalog.SlotBooked, f.status(t, scenarioSlot))

	cancelled, err := f.ledger.Cancel(ctx, booking.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, BookingCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	holdB, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.NoError(t, err)
	assert.Equal(t, "seeker-b", holdB.SeekerID)
}

func TestHoldExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)

	f.clock.Advance(119 * time.Second)
	_, err = f.ledger.HoldStatus(hold.Token)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldExpired)
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	// the stale token keeps reporting expiry
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldExpired)
	_, err = f.ledger.HoldStatus(hold.Token)
	require.ErrorIs(t, err, ErrHoldExpired)
}

func TestSweepExpiresHoldsAndKeepsTombstones(t *testing.T) {
	f := newFixture(t)
	f.ledger.WithTombstoneRetention(10 * time.Minute)
	ctx := context.Background()

	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	assert.Equal(t, 0, f.ledger.ExpireHolds(f.clock.Now()))
	assert.Equal(t, 1, f.ledger.ActiveHolds())

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.ledger.ExpireHolds(f.clock.Now()))
	assert.Equal(t, 0, f.ledger.ActiveHolds())
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldExpired)

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, f.ledger.ExpireHolds(f.clock.Now()))
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)
}

func TestReserveReclaimsExpiredHoldLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	f.clock.Advance(3 * time.Minute)

	fresh, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.NoError(t, err)
	assert.NotEqual(t, stale.Token, fresh.Token)

	_, err = f.ledger.Confirm(ctx, stale.Token)
	require.ErrorIs(t, err, ErrHoldExpired)

	booking, err := f.ledger.Confirm(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "seeker-b", booking.SeekerID)
}

func TestConfirmTwiceReturnsHoldNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)

	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)

	_, err = f.ledger.Confirm(ctx, "hold_unknown")
	require.ErrorIs(t, err, ErrHoldNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	booking, err := f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)

	first, err := f.ledger.Cancel(ctx, booking.ConfirmationToken)
	require.NoError(t, err)

	// someone else grabs the reopened slot
	_, err = f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.NoError(t, err)

	second, err := f.ledger.Cancel(ctx, booking.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, catalog.SlotHeld, f.status(t, scenarioSlot), "second cancel must not release the slot again")

	_, err = f.ledger.Cancel(ctx, "cnf_unknown")
	require.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelBookingReportsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	booking, err := f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)

	b, transitioned, err := f.ledger.CancelBooking(ctx, booking.ConfirmationToken)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, BookingCancelled, b.Status)

	again, transitioned, err := f.ledger.CancelBooking(ctx, booking.ConfirmationToken)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, b, again)

	_, transitioned, err = f.ledger.CancelBooking(ctx, "cnf_unknown")
	require.ErrorIs(t, err, ErrBookingNotFound)
	assert.False(t, transitioned)
}

func TestReleaseSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)

	require.NoError(t, f.ledger.Release(ctx, hold.Token))
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))
	require.NoError(t, f.ledger.Release(ctx, hold.Token))
	require.NoError(t, f.ledger.Release(ctx, "hold_unknown"))

	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)

	expiring, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.ledger.Release(ctx, expiring.Token))
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))
}

func TestReleaseAfterConfirmIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Release(ctx, hold.Token))
	assert.Equal(t, catalog.SlotBooked, f.status(t, scenarioSlot))
}

func TestReserveFailuresLeaveSlotUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Reserve(ctx, "missing-slot", "seeker-a")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = f.ledger.Reserve(ctx, scenarioSlot, "  ")
	require.True(t, catalog.IsValidation(err))
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.ledger.Reserve(cancelled, scenarioSlot, "seeker-a")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, catalog.SlotOpen, f.status(t, scenarioSlot))

	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	_, err = f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.ErrorIs(t, err, ErrSlotUnavailable)
	live, err := f.ledger.HoldStatus(hold.Token)
	require.NoError(t, err)
	assert.Equal(t, "seeker-a", live.SeekerID)
}

func TestConcurrentReserveHasExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const racers = 64

	var wins, unavailable atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.ledger.Reserve(ctx, scenarioSlot, fmt.Sprintf("seeker-%d", i))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrSlotUnavailable):
				unavailable.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, racers-1, unavailable.Load())
	assert.Equal(t, catalog.SlotHeld, f.status(t, scenarioSlot))
}

func TestConcurrentConfirmOfOneHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Confirm(ctx, hold.Token); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, ErrHoldNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestDifferentSlotsProceedIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var slotIDs []string
	for _, start := range []string{"08:00", "09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"} {
		slotIDs = append(slotIDs, f.addSlot(t, start, catalog.Duration30))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(slotIDs))
	for i, id := range slotIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			hold, err := f.ledger.Reserve(ctx, id, fmt.Sprintf("seeker-%d", i))
			if err != nil {
				errs <- err
				return
			}
			if _, err := f.ledger.Confirm(ctx, hold.Token); err != nil {
				errs <- err
			}
		}(i, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	for _, id := range slotIDs {
		assert.Equal(t, catalog.SlotBooked, f.status(t, id))
	}
}

func TestPricesFollowDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for d, want := range map[catalog.SessionDuration]int64{catalog.Duration30: 75, catalog.Duration90: 180} {
		start := "10:00"
		if d == catalog.Duration90 {
			start = "14:00"
		}
		id := f.addSlot(t, start, d)
		hold, err := f.ledger.Reserve(ctx, id, "seeker")
		require.NoError(t, err)
		booking, err := f.ledger.Confirm(ctx, hold.Token)
		require.NoError(t, err)
		assert.True(t, booking.Price.Amount.Equal(decimal.NewFromInt(want)), "duration %d priced %s", d, booking.Price)
	}
}

func TestPriceTable(t *testing.T) {
	table := DefaultPriceTable("eur")
	assert.Equal(t, "EUR", table.Currency())
	price, err := table.Price(catalog.Duration60)
	require.NoError(t, err)
	assert.Equal(t, "120.00 EUR", price.String())

	_, err = table.Price(45)
	assert.True(t, catalog.IsValidation(err))

	assert.Equal(t, "USD", NewPriceTable("", nil).Currency())
}

func TestBookingLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	booking, err := f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)

	got, err := f.ledger.Booking(booking.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, booking, got)

	_, err = f.ledger.Booking("cnf_missing")
	require.ErrorIs(t, err, ErrBookingNotFound)
}

func TestLedgerMetricsWiring(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.ledger.WithMetrics(metrics.NewLedgerMetrics(reg))
	ctx := context.Background()

	hold, err := f.ledger.Reserve(ctx, scenarioSlot, "seeker-a")
	require.NoError(t, err)
	_, err = f.ledger.Reserve(ctx, scenarioSlot, "seeker-b")
	require.ErrorIs(t, err, ErrSlotUnavailable)
	_, err = f.ledger.Confirm(ctx, hold.Token)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "virevamind_ledger_reservations_total", "virevamind_ledger_confirmations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewPanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { New(nil, PriceTable{}, nil) })
}

// TestRandomOperationsPreserveInvariants hammers a handful of slots with
// every operation and then checks that slot status agrees with the holds and
// bookings that reference it.
func TestRandomOperationsPreserveInvariants(t *testing.T) {
	f := newFixture(t)
	f.ledger.WithHoldTTL(time.Minute)
	ctx := context.Background()
	slotIDs := []string{scenarioSlot, f.addSlot(t, "09:00", catalog.Duration30), f.addSlot(t, "11:00", catalog.Duration90)}

	var mu sync.Mutex
	var holds, confirmations []string
	pick := func(r *rand.Rand, from *[]string) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(*from) == 0 {
			return "", false
		}
		return (*from)[r.Intn(len(*from))], true
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 300; i++ {
				switch r.Intn(6) {
				case 0, 1:
					if hold, err := f.ledger.Reserve(ctx, slotIDs[r.Intn(len(slotIDs))], "seeker"); err == nil {
						mu.Lock()
						holds = append(holds, hold.Token)
						mu.Unlock()
					}
				case 2:
					if token, ok := pick(r, &holds); ok {
						if b, err := f.ledger.Confirm(ctx, token); err == nil {
							mu.Lock()
							confirmations = append(confirmations, b.ConfirmationToken)
							mu.Unlock()
						}
					}
				case 3:
					if token, ok := pick(r, &holds); ok {
						_ = f.ledger.Release(ctx, token)
					}
				case 4:
					if token, ok := pick(r, &confirmations); ok {
						_, _ = f.ledger.Cancel(ctx, token)
					}
				case 5:
					f.clock.Advance(time.Duration(r.Intn(20)) * time.Second)
					f.ledger.ExpireHolds(f.clock.Now())
				}
			}
		}(int64(w))
	}
	wg.Wait()

	liveBookings := map[string]int{}
	f.ledger.bookings.Range(func(_, v any) bool {
		b := v.(*bookingEntry).booking
		if b.Status == BookingConfirmed {
			liveBookings[b.SlotID]++
		}
		return true
	})
	for _, id := range slotIDs {
		_, hasLive := f.ledger.live.Load(id)
		switch f.status(t, id) {
		case catalog.SlotOpen:
			assert.False(t, hasLive, "open slot %s has a live hold", id)
			assert.Zero(t, liveBookings[id], "open slot %s has a booking", id)
		case catalog.SlotHeld:
			assert.True(t, hasLive, "held slot %s has no hold", id)
			assert.Zero(t, liveBookings[id], "held slot %s has a booking", id)
		case catalog.SlotBooked:
			assert.False(t, hasLive, "booked slot %s has a live hold", id)
			assert.Equal(t, 1, liveBookings[id], "booked slot %s", id)
		default:
			t.Fatalf("slot %s left in transient status", id)
		}
	}
}
