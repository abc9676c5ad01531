package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed sliding-window limiter keyed on maker pubkey.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing max reservations per
// window per pubkey.
func NewPG(pool *pgxpool.Pool, window time.Duration, max int) *PG {
	return &PG{pool: pool, window: window, max: max}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max}
}

// Reserve counts the attempt against the pubkey's current window. The window
// restarts once it has fully elapsed since its first reservation.
func (l *PG) Reserve(ctx context.Context, pubkey string) (bool, time.Duration, error) {
	const q = `
INSERT INTO offer_limiter (pubkey, reserved, window_start)
VALUES ($1, 1, now())
ON CONFLICT (pubkey) DO UPDATE
SET
  reserved = CASE WHEN now() - offer_limiter.window_start > $2::interval THEN 1 ELSE offer_limiter.reserved + 1 END,
  window_start = CASE WHEN now() - offer_limiter.window_start > $2::interval THEN now() ELSE offer_limiter.window_start END
RETURNING reserved, window_start`
	var reserved int
	var windowStart time.Time
	if err := l.pool.QueryRow(ctx, q, pubkey, l.window).Scan(&reserved, &windowStart); err != nil {
		return false, 0, err
	}
	if reserved > l.max {
		retry := l.window - time.Since(windowStart)
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}
	return true, 0, nil
}
