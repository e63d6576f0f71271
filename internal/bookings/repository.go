package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
)

// DB is the subset of pgx used by Repository. *pgxpool.Pool and pgxmock
// pools both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository archives bookings in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DB) *Repository {
	if db == nil {
		panic("bookings: db required")
	}
	return &Repository{db: db}
}

const insertBooking = `
	INSERT INTO bookings (
		id, confirmation_token, slot_id, therapist_id, seeker_id,
		session_date, start_time, duration_minutes,
		price_amount, price_currency, status, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (confirmation_token) DO NOTHING
`

// Insert stores a confirmed booking. Re-inserting the same confirmation
// token is a no-op.
func (r *Repository) Insert(ctx context.Context, b ledger.Booking) error {
	_, err := r.db.Exec(ctx, insertBooking,
		b.ID, b.ConfirmationToken, b.SlotID, b.TherapistID, b.SeekerID,
		b.Date, b.Start, int(b.Duration),
		b.Price.Amount.StringFixed(2), b.Price.Currency, string(b.Status), b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("bookings: insert %s: %w", b.ID, err)
	}
	return nil
}

// MarkCancelled flags a confirmed booking as cancelled and reports whether a
// row changed.
func (r *Repository) MarkCancelled(ctx context.Context, confirmationToken string, at time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = $2
		WHERE confirmation_token = $1 AND status = 'confirmed'
	`
	ct, err := r.db.Exec(ctx, query, confirmationToken, at.UTC())
	if err != nil {
		return false, fmt.Errorf("bookings: mark cancelled: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// GetByToken loads an archived booking. Unknown tokens return
// ledger.ErrBookingNotFound.
func (r *Repository) GetByToken(ctx context.Context, confirmationToken string) (ledger.Booking, error) {
	query := `
		SELECT id, confirmation_token, slot_id, therapist_id, seeker_id,
		       session_date::text, start_time, duration_minutes,
		       price_amount::text, price_currency, status, created_at, cancelled_at
		FROM bookings
		WHERE confirmation_token = $1
	`
	var (
		b        ledger.Booking
		minutes  int
		amount   string
		status   string
		canceled *time.Time
	)
	err := r.db.QueryRow(ctx, query, confirmationToken).Scan(
		&b.ID, &b.ConfirmationToken, &b.SlotID, &b.TherapistID, &b.SeekerID,
		&b.Date, &b.Start, &minutes,
		&amount, &b.Price.Currency, &status, &b.CreatedAt, &canceled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Booking{}, ledger.ErrBookingNotFound
		}
		return ledger.Booking{}, fmt.Errorf("bookings: load %s: %w", confirmationToken, err)
	}
	price, err := decimal.NewFromString(amount)
	if err != nil {
		return ledger.Booking{}, fmt.Errorf("bookings: parse price %q: %w", amount, err)
	}
	b.Price.Amount = price
	b.Duration = catalog.SessionDuration(minutes)
	b.Status = ledger.BookingStatus(status)
	b.CancelledAt = canceled
	return b, nil
}
