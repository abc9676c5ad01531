// Package postgres contains PostgreSQL implementations of the repository
// interfaces. Offer transitions, escrow funding and settlement are written
// through transactions here; the affected-row count of a conditional UPDATE
// is what arbitrates concurrent state changes.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of pgxpool.Pool the repositories need. pgxmock's
// PgxPoolIface satisfies it too, which is how the repository tests run
// without a live database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx backs the multi-row writes: funding, claims and settlements.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// DB hands one shared pool to every repository constructor.
type DB struct{ Pool PgxPool }

// New opens a connection pool against the escrow database.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close releases the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// isUniqueViolation reports whether err is Postgres error 23505. The claim,
// receipt and mint-quote tables are keyed one row per offer; a duplicate
// insert means the offer moved on concurrently and maps to ErrInvalidState.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
