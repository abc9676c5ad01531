package service

import (
	"context"
	"fmt"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/fees"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
	"github.com/openpleb/escrowd/internal/wallet"
)

// CreateOfferParams is the maker's offer announcement.
type CreateOfferParams struct {
	FiatAmount     int64
	ConversionRate float64
	QRCode         string
	Pubkey         string
	FiatProviderID *int64
}

// Create validates the fiat amount, freezes the fee and bond parameters into
// a new offer and stores it in CREATED. No funds move yet.
func (s *Offers) Create(ctx context.Context, p CreateOfferParams) (*model.Offer, error) {
	if p.Pubkey == "" || p.QRCode == "" {
		return nil, errs.ErrInvalidRequest
	}
	quote, err := fees.Compute(p.FiatAmount, p.ConversionRate, s.cfg.Fees)
	if err != nil {
		return nil, err
	}

	ok, retry, err := s.limiter.Reserve(ctx, p.Pubkey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry)
	}

	offer := &model.Offer{
		Status:                model.StatusCreated,
		FiatAmount:            p.FiatAmount,
		Currency:              s.cfg.Currency,
		QRCode:                p.QRCode,
		FiatProviderID:        p.FiatProviderID,
		ConversionRate:        p.ConversionRate,
		SatsAmount:            quote.SatsAmount,
		PlatformFeeFlatRate:   quote.PlatformFeeFlatRate,
		PlatformFeePercentage: quote.PlatformFeePercentage,
		TakerFeeFlatRate:      quote.TakerFeeFlatRate,
		TakerFeePercentage:    quote.TakerFeePercentage,
		BondFlatRate:          quote.BondFlatRate,
		BondPercentage:        quote.BondPercentage,
		Pubkey:                p.Pubkey,
		CreatedAt:             s.nowUnix(),
		ValidForS:             s.cfg.CreatedValidForS,
	}
	offer, err = s.offers.Create(ctx, offer)
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.NewOffer(offer))
	return offer, nil
}

// Get returns an offer by id.
func (s *Offers) Get(ctx context.Context, id int64) (*model.Offer, error) {
	return s.offers.Get(ctx, id)
}

// ListOpen returns offers still in a non-terminal state, newest first.
func (s *Offers) ListOpen(ctx context.Context) ([]model.Offer, error) {
	return s.offers.List(ctx, model.NonTerminalStatuses)
}

// GetClaim returns the offer's claim.
func (s *Offers) GetClaim(ctx context.Context, offerID int64) (*model.Claim, error) {
	return s.claims.GetByOfferID(ctx, offerID)
}

// GetReceipt returns the offer's receipt.
func (s *Offers) GetReceipt(ctx context.Context, offerID int64) (*model.Receipt, error) {
	return s.receipts.GetByOfferID(ctx, offerID)
}

// RequestInvoice asks the mint for a quote over the offer's total escrow
// amount and stores the resulting lightning invoice. Calling it again once
// the invoice exists is a no-op returning the offer unchanged.
func (s *Offers) RequestInvoice(ctx context.Context, offerID int64) (*model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Invoice != "" && offer.Status == model.StatusInvoiceCreated {
		return offer, nil
	}
	if offer.Status != model.StatusCreated {
		return nil, errs.ErrInvalidState
	}

	total := offer.TotalEscrowAmount()
	mq, err := s.wallet.CreateMintQuote(ctx, total)
	if err != nil {
		return nil, err
	}

	// Invoice and quote row commit together; a maker is never shown a
	// payable invoice whose payment could not be polled.
	offer, err = s.offers.AttachInvoice(ctx, offerID,
		model.StatusCreated, model.StatusInvoiceCreated,
		repository.OfferUpdate{Invoice: &mq.Request},
		&model.MintQuote{
			Quote:   mq.Quote,
			OfferID: offerID,
			Amount:  total,
			Request: mq.Request,
			State:   mq.State,
		})
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	return offer, nil
}

// CheckInvoicePaid polls the quote's external payment state. The first caller
// observing PAID mints the escrow proofs and moves the offer to INVOICE_PAID;
// repeated polling after that fails the status guard and never re-mints.
func (s *Offers) CheckInvoicePaid(ctx context.Context, offerID int64) (string, *model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return "", nil, err
	}
	quote, err := s.quotes.GetByOfferID(ctx, offerID)
	if err != nil {
		return "", nil, err
	}

	state, err := s.wallet.CheckMintQuote(ctx, quote.Quote)
	if err != nil {
		return "", nil, err
	}
	if state != wallet.QuotePaid {
		return state, offer, nil
	}
	if offer.Status != model.StatusInvoiceCreated {
		return state, nil, errs.ErrInvalidState
	}

	minted, err := s.wallet.MintProofs(ctx, quote.Amount, quote.Quote)
	if err != nil {
		return state, nil, err
	}

	paidAt := s.nowUnix()
	offer, err = s.offers.Fund(ctx, offerID,
		model.StatusInvoiceCreated, model.StatusInvoicePaid,
		s.ledgerRows(offerID, minted, model.ProofUnspent),
		repository.OfferUpdate{PaidAt: &paidAt, ValidForS: &s.cfg.FundedValidForS})
	if err != nil {
		return state, nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	return state, offer, nil
}

// FundWithToken funds a CREATED offer directly with an encoded bearer token,
// bypassing the invoice path. The token must sum to exactly the total escrow
// amount, and the wallet must redeem that exact amount.
func (s *Offers) FundWithToken(ctx context.Context, offerID int64, encodedToken string) (*model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != model.StatusCreated {
		return nil, errs.ErrInvalidState
	}

	token, err := cashu.DecodeToken(encodedToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	total := offer.TotalEscrowAmount()
	if cashu.SumProofs(token.Proofs) != total {
		return nil, errs.ErrAmountMismatch
	}

	redeemed, err := s.wallet.Receive(ctx, encodedToken)
	if err != nil {
		return nil, err
	}
	if cashu.SumProofs(redeemed) != total {
		return nil, errs.ErrRedemptionMismatch
	}

	offer, err = s.offers.Fund(ctx, offerID,
		model.StatusCreated, model.StatusInvoicePaid,
		s.ledgerRows(offerID, redeemed, model.ProofUnspent),
		repository.OfferUpdate{ValidForS: &s.cfg.FundedValidForS})
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	return offer, nil
}

// ledgerRows converts wallet proofs into escrow ledger rows for one offer.
func (s *Offers) ledgerRows(offerID int64, proofs []cashu.Proof, state model.ProofState) []model.Proof {
	rows := make([]model.Proof, 0, len(proofs))
	for _, p := range proofs {
		rows = append(rows, model.Proof{
			OfferID:  offerID,
			KeysetID: p.ID,
			Secret:   p.Secret,
			C:        p.C,
			Amount:   p.Amount,
			State:    state,
		})
	}
	return rows
}
