// Package service implements the offer settlement engine: the state machine
// driving an offer through its lifecycle, the settlement arithmetic splitting
// escrowed proofs into reward and refund tokens, and the forced expiry
// transitions executed by the sweeper.
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/fees"
	"github.com/openpleb/escrowd/internal/limiter"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
	"github.com/openpleb/escrowd/internal/wallet"
)

// Config carries the engine's frozen-at-creation parameters and grace
// windows. Values are read once from configuration at startup.
type Config struct {
	Fees     fees.Params
	Currency string
	MintURL  string

	// Rolling validity windows (seconds) applied on transitions.
	CreatedValidForS int64
	FundedValidForS  int64
	ClaimValidForS   int64
	ReceiptValidForS int64
	IssueGraceS      int64
}

// Offers is the offer state machine. All mutating operations validate the
// offer's current status as a precondition and perform the transition as a
// conditional update, so concurrent callers racing on the same offer have
// exactly one winner.
type Offers struct {
	offers   repository.OfferRepository
	claims   repository.ClaimRepository
	receipts repository.ReceiptRepository
	proofs   repository.ProofRepository
	quotes   repository.MintQuoteRepository

	wallet   wallet.Wallet
	notifier notify.Notifier
	limiter  limiter.Limiter

	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// Deps bundles the collaborators an Offers engine needs.
type Deps struct {
	Offers   repository.OfferRepository
	Claims   repository.ClaimRepository
	Receipts repository.ReceiptRepository
	Proofs   repository.ProofRepository
	Quotes   repository.MintQuoteRepository
	Wallet   wallet.Wallet
	Notifier notify.Notifier
	Limiter  limiter.Limiter
}

// NewOffers constructs the engine.
func NewOffers(d Deps, cfg Config, logger *zap.Logger) *Offers {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Limiter == nil {
		d.Limiter = limiter.Unlimited{}
	}
	return &Offers{
		offers:   d.Offers,
		claims:   d.Claims,
		receipts: d.Receipts,
		proofs:   d.Proofs,
		quotes:   d.Quotes,
		wallet:   d.Wallet,
		notifier: d.Notifier,
		limiter:  d.Limiter,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Offers) nowUnix() int64 { return s.now().Unix() }
