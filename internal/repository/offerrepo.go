// Package repository declares storage interfaces consumed by services.
package repository

import (
	"context"

	"github.com/openpleb/escrowd/internal/model"
)

// OfferUpdate carries the mutable offer fields a transition may set alongside
// its status change. Nil pointers leave the column untouched.
type OfferUpdate struct {
	ValidForS        *int64
	PaidAt           *int64
	Invoice          *string
	Refund           *string
	Feedback         *string
	FeedbackResponse *string
	ResolutionReason *string
	ReceiptSkipped   *bool
}

// SettleParams describes the single all-or-nothing settlement write: ledger
// rows, the claim's reward token and the offer's terminal transition.
type SettleParams struct {
	OfferID int64

	// From guards the offer's compare-and-swap status update.
	From model.OfferStatus
	To   model.OfferStatus

	// SpentInputs are the UNSPENT rows consumed by the wallet spend; a SPENT
	// row is appended for each (the ledger is append-only).
	SpentInputs []model.Proof
	// NewProofs are the keep+send proofs returned by the wallet, recorded as
	// PENDING until the mint confirms them.
	NewProofs []model.Proof

	// RewardToken is persisted on the claim when non-empty.
	RewardToken string

	Update OfferUpdate
}

// OfferRepository is the offer row store. Status transitions are conditional
// updates keyed on the expected previous status; a transition whose guard
// matches no row fails with errs.ErrInvalidState and has no effect.
type OfferRepository interface {
	// Create inserts a new offer in its initial status and returns it with
	// the assigned id.
	Create(ctx context.Context, o *model.Offer) (*model.Offer, error)
	// Get returns an offer by id.
	Get(ctx context.Context, id int64) (*model.Offer, error)
	// List returns offers in any of the given statuses, newest first.
	List(ctx context.Context, statuses []model.OfferStatus) ([]model.Offer, error)
	// ListExpired returns offers whose createdAt+validForS has passed and
	// whose status is in the non-terminal set.
	ListExpired(ctx context.Context, now int64) ([]model.Offer, error)
	// UpdateStatus performs the compare-and-swap transition from -> to and
	// applies upd in the same statement, returning the updated offer.
	UpdateStatus(ctx context.Context, id int64, from, to model.OfferStatus, upd OfferUpdate) (*model.Offer, error)
	// AttachInvoice stores the invoice via the guarded transition and inserts
	// the mint-quote row in the same transaction, so a payable invoice is
	// never persisted without its pollable quote.
	AttachInvoice(ctx context.Context, id int64, from, to model.OfferStatus, upd OfferUpdate, quote *model.MintQuote) (*model.Offer, error)
	// Fund atomically inserts escrow proofs as UNSPENT and performs the
	// compare-and-swap transition from -> to in one transaction.
	Fund(ctx context.Context, id int64, from, to model.OfferStatus, proofs []model.Proof, upd OfferUpdate) (*model.Offer, error)
	// Settle applies a settlement as one transaction: appends ledger rows,
	// sets the claim reward (when present) and transitions the offer.
	Settle(ctx context.Context, p SettleParams) (*model.Offer, *model.Claim, error)
}

// ClaimRepository stores the 1:1 offer claims.
type ClaimRepository interface {
	// CreateWithBond inserts the claim row and the redeemed bond's ledger
	// rows in one transaction; neither lands without the other.
	CreateWithBond(ctx context.Context, c *model.Claim, bond []model.Proof) (*model.Claim, error)
	GetByOfferID(ctx context.Context, offerID int64) (*model.Claim, error)
}

// ReceiptRepository stores the 1:1 offer receipts.
type ReceiptRepository interface {
	Create(ctx context.Context, r *model.Receipt) (*model.Receipt, error)
	GetByOfferID(ctx context.Context, offerID int64) (*model.Receipt, error)
}

// ProofRepository is the append-only escrow ledger.
type ProofRepository interface {
	// Insert appends ledger rows.
	Insert(ctx context.Context, proofs []model.Proof) error
	// UnspentByOffer returns the offer's UNSPENT rows, excluding any secret
	// that a later PENDING/SPENT row has superseded.
	UnspentByOffer(ctx context.Context, offerID int64) ([]model.Proof, error)
	// ListPending returns up to limit PENDING rows across all offers.
	ListPending(ctx context.Context, limit int) ([]model.Proof, error)
}

// MintQuoteRepository reads lightning-invoice funding quotes. Quote rows are
// written through OfferRepository.AttachInvoice.
type MintQuoteRepository interface {
	GetByOfferID(ctx context.Context, offerID int64) (*model.MintQuote, error)
}
