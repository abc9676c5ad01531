package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
)

// ReceiptRepo implements ReceiptRepository using PostgreSQL.
type ReceiptRepo struct{ db *DB }

// NewReceiptRepo constructs a receipt repository.
func NewReceiptRepo(db *DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

// Create inserts the offer's receipt row (image or skip marker).
func (r *ReceiptRepo) Create(ctx context.Context, rc *model.Receipt) (*model.Receipt, error) {
	const q = `
INSERT INTO receipts (offer_id, pubkey, receipt_img, skipped, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, offer_id, pubkey, receipt_img, skipped, reason, created_at`
	var out model.Receipt
	err := r.db.Pool.QueryRow(ctx, q, rc.OfferID, rc.Pubkey, rc.ReceiptImg, rc.Skipped, rc.Reason, rc.CreatedAt).
		Scan(&out.ID, &out.OfferID, &out.Pubkey, &out.ReceiptImg, &out.Skipped, &out.Reason, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrInvalidState
		}
		return nil, err
	}
	return &out, nil
}

// GetByOfferID returns the offer's receipt.
func (r *ReceiptRepo) GetByOfferID(ctx context.Context, offerID int64) (*model.Receipt, error) {
	const q = `SELECT id, offer_id, pubkey, receipt_img, skipped, reason, created_at FROM receipts WHERE offer_id=$1`
	var rc model.Receipt
	err := r.db.Pool.QueryRow(ctx, q, offerID).
		Scan(&rc.ID, &rc.OfferID, &rc.Pubkey, &rc.ReceiptImg, &rc.Skipped, &rc.Reason, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rc, nil
}
