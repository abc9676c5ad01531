package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
)

// ClaimRepo implements ClaimRepository using PostgreSQL. offer_id is unique,
// so a second insert for the same offer fails.
type ClaimRepo struct{ db *DB }

// NewClaimRepo constructs a claim repository.
func NewClaimRepo(db *DB) *ClaimRepo { return &ClaimRepo{db: db} }

// CreateWithBond inserts the offer's claim row and the redeemed bond's ledger
// rows in one transaction. Any failure rolls back both, so a claim never
// exists without its bond and a bond is never held without a claim. A
// duplicate offer maps to ErrInvalidState: the offer was claimed concurrently.
func (r *ClaimRepo) CreateWithBond(ctx context.Context, c *model.Claim, bond []model.Proof) (claim *model.Claim, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `
INSERT INTO claims (offer_id, pubkey, created_at)
VALUES ($1,$2,$3)
RETURNING id, offer_id, pubkey, reward, created_at`
	var out model.Claim
	if err = tx.QueryRow(ctx, q, c.OfferID, c.Pubkey, c.CreatedAt).
		Scan(&out.ID, &out.OfferID, &out.Pubkey, &out.Reward, &out.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrInvalidState
		}
		return nil, err
	}
	if err = insertProofs(ctx, tx, bond); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByOfferID returns the offer's claim.
func (r *ClaimRepo) GetByOfferID(ctx context.Context, offerID int64) (*model.Claim, error) {
	const q = `SELECT id, offer_id, pubkey, reward, created_at FROM claims WHERE offer_id=$1`
	var c model.Claim
	err := r.db.Pool.QueryRow(ctx, q, offerID).
		Scan(&c.ID, &c.OfferID, &c.Pubkey, &c.Reward, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
