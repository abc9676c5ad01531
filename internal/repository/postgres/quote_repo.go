package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
)

// MintQuoteRepo implements MintQuoteRepository using PostgreSQL. Quote rows
// are inserted by OfferRepo.AttachInvoice inside the invoice transaction;
// this repo only reads them back.
type MintQuoteRepo struct{ db *DB }

// NewMintQuoteRepo constructs a mint quote repository.
func NewMintQuoteRepo(db *DB) *MintQuoteRepo { return &MintQuoteRepo{db: db} }

// GetByOfferID returns the offer's funding quote.
func (r *MintQuoteRepo) GetByOfferID(ctx context.Context, offerID int64) (*model.MintQuote, error) {
	const sql = `SELECT quote, offer_id, amount, request, state FROM mint_quotes WHERE offer_id=$1`
	var q model.MintQuote
	err := r.db.Pool.QueryRow(ctx, sql, offerID).
		Scan(&q.Quote, &q.OfferID, &q.Amount, &q.Request, &q.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}
