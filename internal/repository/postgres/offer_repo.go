package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/repository"
)

// OfferRepo implements OfferRepository using PostgreSQL. Status transitions
// are conditional updates on the expected previous status; the affected-row
// count is the concurrency guard.
type OfferRepo struct{ db *DB }

// NewOfferRepo constructs an offer repository.
func NewOfferRepo(db *DB) *OfferRepo { return &OfferRepo{db: db} }

const offerColumns = `id, status, fiat_amount, currency, qr_code, fiat_provider_id, conversion_rate, sats_amount,
platform_fee_flat_rate, platform_fee_percentage, taker_fee_flat_rate, taker_fee_percentage,
bond_flat_rate, bond_percentage, pubkey, created_at, paid_at, valid_for_s,
invoice, refund, feedback, feedback_response, resolution_reason, receipt_skipped`

func scanOffer(row pgx.Row) (*model.Offer, error) {
	var o model.Offer
	err := row.Scan(
		&o.ID, &o.Status, &o.FiatAmount, &o.Currency, &o.QRCode, &o.FiatProviderID, &o.ConversionRate, &o.SatsAmount,
		&o.PlatformFeeFlatRate, &o.PlatformFeePercentage, &o.TakerFeeFlatRate, &o.TakerFeePercentage,
		&o.BondFlatRate, &o.BondPercentage, &o.Pubkey, &o.CreatedAt, &o.PaidAt, &o.ValidForS,
		&o.Invoice, &o.Refund, &o.Feedback, &o.FeedbackResponse, &o.ResolutionReason, &o.ReceiptSkipped,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts a new offer and returns it with the assigned id.
func (r *OfferRepo) Create(ctx context.Context, o *model.Offer) (*model.Offer, error) {
	const q = `
INSERT INTO offers (status, fiat_amount, currency, qr_code, fiat_provider_id, conversion_rate, sats_amount,
  platform_fee_flat_rate, platform_fee_percentage, taker_fee_flat_rate, taker_fee_percentage,
  bond_flat_rate, bond_percentage, pubkey, created_at, valid_for_s, invoice)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING ` + offerColumns
	row := r.db.Pool.QueryRow(ctx, q,
		o.Status, o.FiatAmount, o.Currency, o.QRCode, o.FiatProviderID, o.ConversionRate, o.SatsAmount,
		o.PlatformFeeFlatRate, o.PlatformFeePercentage, o.TakerFeeFlatRate, o.TakerFeePercentage,
		o.BondFlatRate, o.BondPercentage, o.Pubkey, o.CreatedAt, o.ValidForS, o.Invoice,
	)
	return scanOffer(row)
}

// Get returns a single offer by id.
func (r *OfferRepo) Get(ctx context.Context, id int64) (*model.Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers WHERE id=$1`
	o, err := scanOffer(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns offers in any of the given statuses, newest first.
func (r *OfferRepo) List(ctx context.Context, statuses []model.OfferStatus) ([]model.Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers WHERE status = ANY($1) ORDER BY id DESC`
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := r.db.Pool.Query(ctx, q, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

// ListExpired returns non-terminal offers whose deadline has passed.
func (r *OfferRepo) ListExpired(ctx context.Context, now int64) ([]model.Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers WHERE created_at + valid_for_s < $1 AND status = ANY($2) ORDER BY id`
	ss := make([]string, len(model.NonTerminalStatuses))
	for i, s := range model.NonTerminalStatuses {
		ss[i] = string(s)
	}
	rows, err := r.db.Pool.Query(ctx, q, now, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]model.Offer, error) {
	var out []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// setClause renders the SET fragment for a conditional status update. The
// status itself is always $1; optional fields follow.
func setClause(to model.OfferStatus, upd repository.OfferUpdate) (string, []any) {
	set := []string{"status=$1"}
	args := []any{string(to)}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.ValidForS != nil {
		add("valid_for_s", *upd.ValidForS)
	}
	if upd.PaidAt != nil {
		add("paid_at", *upd.PaidAt)
	}
	if upd.Invoice != nil {
		add("invoice", *upd.Invoice)
	}
	if upd.Refund != nil {
		add("refund", *upd.Refund)
	}
	if upd.Feedback != nil {
		add("feedback", *upd.Feedback)
	}
	if upd.FeedbackResponse != nil {
		add("feedback_response", *upd.FeedbackResponse)
	}
	if upd.ResolutionReason != nil {
		add("resolution_reason", *upd.ResolutionReason)
	}
	if upd.ReceiptSkipped != nil {
		add("receipt_skipped", *upd.ReceiptSkipped)
	}
	return strings.Join(set, ", "), args
}

// UpdateStatus performs the compare-and-swap transition and applies upd in the
// same statement. A guard miss yields ErrNotFound for absent offers and
// ErrInvalidState otherwise.
func (r *OfferRepo) UpdateStatus(
	ctx context.Context, id int64, from, to model.OfferStatus, upd repository.OfferUpdate,
) (*model.Offer, error) {
	set, args := setClause(to, upd)
	args = append(args, id, string(from))
	q := fmt.Sprintf(`UPDATE offers SET %s WHERE id=$%d AND status=$%d RETURNING %s`,
		set, len(args)-1, len(args), offerColumns)
	o, err := scanOffer(r.db.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.guardMiss(ctx, id)
		}
		return nil, err
	}
	return o, nil
}

// guardMiss disambiguates a failed conditional update.
func (r *OfferRepo) guardMiss(ctx context.Context, id int64) error {
	if _, err := r.Get(ctx, id); errors.Is(err, errs.ErrNotFound) {
		return errs.ErrNotFound
	}
	return errs.ErrInvalidState
}

// AttachInvoice performs the guarded status update that stores the invoice
// and inserts the mint-quote row in one transaction: a payable invoice is
// never persisted without the quote that CheckInvoicePaid polls.
func (r *OfferRepo) AttachInvoice(
	ctx context.Context, id int64, from, to model.OfferStatus, upd repository.OfferUpdate, quote *model.MintQuote,
) (offer *model.Offer, err error) {
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

	set, args := setClause(to, upd)
	args = append(args, id, string(from))
	q := fmt.Sprintf(`UPDATE offers SET %s WHERE id=$%d AND status=$%d RETURNING %s`,
		set, len(args)-1, len(args), offerColumns)
	offer, err = scanOffer(tx.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = r.guardMiss(ctx, id)
		}
		return nil, err
	}

	const iq = `INSERT INTO mint_quotes (quote, offer_id, amount, request, state) VALUES ($1,$2,$3,$4,$5)`
	if _, err = tx.Exec(ctx, iq, quote.Quote, quote.OfferID, quote.Amount, quote.Request, quote.State); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrInvalidState
		}
		return nil, err
	}
	return offer, nil
}

// Fund inserts escrow proofs as UNSPENT and performs the guarded status update
// in one transaction, so repeated funding attempts can never double-credit.
func (r *OfferRepo) Fund(
	ctx context.Context, id int64, from, to model.OfferStatus, proofs []model.Proof, upd repository.OfferUpdate,
) (offer *model.Offer, err error) {
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

	set, args := setClause(to, upd)
	args = append(args, id, string(from))
	q := fmt.Sprintf(`UPDATE offers SET %s WHERE id=$%d AND status=$%d RETURNING %s`,
		set, len(args)-1, len(args), offerColumns)
	offer, err = scanOffer(tx.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = r.guardMiss(ctx, id)
		}
		return nil, err
	}
	if err = insertProofs(ctx, tx, proofs); err != nil {
		return nil, err
	}
	return offer, nil
}

// Settle applies a settlement as a single transaction: append-only ledger
// rows, the claim's reward token, and the offer's terminal transition. Any
// failure rolls back the whole unit.
func (r *OfferRepo) Settle(ctx context.Context, p repository.SettleParams) (offer *model.Offer, claim *model.Claim, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
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

	set, args := setClause(p.To, p.Update)
	args = append(args, p.OfferID, string(p.From))
	q := fmt.Sprintf(`UPDATE offers SET %s WHERE id=$%d AND status=$%d RETURNING %s`,
		set, len(args)-1, len(args), offerColumns)
	offer, err = scanOffer(tx.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = r.guardMiss(ctx, p.OfferID)
		}
		return nil, nil, err
	}

	spent := make([]model.Proof, 0, len(p.SpentInputs))
	for _, in := range p.SpentInputs {
		in.State = model.ProofSpent
		spent = append(spent, in)
	}
	if err = insertProofs(ctx, tx, spent); err != nil {
		return nil, nil, err
	}
	if err = insertProofs(ctx, tx, p.NewProofs); err != nil {
		return nil, nil, err
	}

	if p.RewardToken != "" {
		const cq = `UPDATE claims SET reward=$1 WHERE offer_id=$2 RETURNING id, offer_id, pubkey, reward, created_at`
		var c model.Claim
		if err = tx.QueryRow(ctx, cq, p.RewardToken, p.OfferID).
			Scan(&c.ID, &c.OfferID, &c.Pubkey, &c.Reward, &c.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = errs.ErrNotFound
			}
			return nil, nil, err
		}
		claim = &c
	}
	return offer, claim, nil
}

// insertProofs appends ledger rows inside a transaction.
func insertProofs(ctx context.Context, tx pgx.Tx, proofs []model.Proof) error {
	const q = `INSERT INTO proofs (offer_id, keyset_id, secret, c, amount, state) VALUES ($1,$2,$3,$4,$5,$6)`
	for _, p := range proofs {
		if _, err := tx.Exec(ctx, q, p.OfferID, p.KeysetID, p.Secret, p.C, p.Amount, string(p.State)); err != nil {
			return err
		}
	}
	return nil
}
