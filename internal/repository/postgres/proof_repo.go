package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/openpleb/escrowd/internal/model"
)

// ProofRepo implements the append-only escrow ledger on PostgreSQL.
type ProofRepo struct{ db *DB }

// NewProofRepo constructs a proof repository.
func NewProofRepo(db *DB) *ProofRepo { return &ProofRepo{db: db} }

const proofColumns = `id, offer_id, keyset_id, secret, c, amount, state`

// Insert appends ledger rows.
func (r *ProofRepo) Insert(ctx context.Context, proofs []model.Proof) error {
	const q = `INSERT INTO proofs (offer_id, keyset_id, secret, c, amount, state) VALUES ($1,$2,$3,$4,$5,$6)`
	for _, p := range proofs {
		if _, err := r.db.Pool.Exec(ctx, q, p.OfferID, p.KeysetID, p.Secret, p.C, p.Amount, string(p.State)); err != nil {
			return err
		}
	}
	return nil
}

// UnspentByOffer returns the offer's live UNSPENT rows. A secret that also has
// a PENDING or SPENT row was superseded by a later step and is excluded.
func (r *ProofRepo) UnspentByOffer(ctx context.Context, offerID int64) ([]model.Proof, error) {
	const q = `
SELECT ` + proofColumns + `
FROM proofs
WHERE offer_id=$1 AND state='UNSPENT'
  AND secret NOT IN (SELECT secret FROM proofs WHERE offer_id=$1 AND state <> 'UNSPENT')
ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProofs(rows)
}

// ListPending returns up to limit PENDING rows across all offers, excluding
// secrets already confirmed SPENT.
func (r *ProofRepo) ListPending(ctx context.Context, limit int) ([]model.Proof, error) {
	const q = `
SELECT ` + proofColumns + `
FROM proofs p
WHERE state='PENDING'
  AND NOT EXISTS (SELECT 1 FROM proofs s WHERE s.secret = p.secret AND s.state='SPENT')
ORDER BY id
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProofs(rows)
}

func collectProofs(rows pgx.Rows) ([]model.Proof, error) {
	var out []model.Proof
	for rows.Next() {
		var p model.Proof
		if err := rows.Scan(&p.ID, &p.OfferID, &p.KeysetID, &p.Secret, &p.C, &p.Amount, &p.State); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
