package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
)

// Claim lets a taker claim an INVOICE_PAID offer by posting a bond token.
//
// The status is flipped to CLAIMED before the bond is validated: the
// conditional update is what closes the race between concurrent claimants,
// so the loser observes InvalidState before any wallet call happens. Every
// failure after the flip reverts it through the same conditional-update
// discipline. Calling Claim again for an already claimed offer is idempotent
// for the claiming taker and Unauthorized for anyone else.
func (s *Offers) Claim(ctx context.Context, offerID int64, takerPubkey, bondToken string) (*model.Claim, error) {
	if takerPubkey == "" {
		return nil, errs.ErrInvalidRequest
	}
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	if offer.Status == model.StatusClaimed {
		claim, err := s.claims.GetByOfferID(ctx, offerID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// The claim row lands after the flip; a concurrent claimant
				// is still redeeming its bond.
				return nil, errs.ErrInvalidState
			}
			return nil, err
		}
		if claim.Pubkey != takerPubkey {
			return nil, errs.ErrUnauthorized
		}
		return claim, nil
	}
	if offer.Status != model.StatusInvoicePaid {
		return nil, errs.ErrInvalidState
	}

	// Tentative flip; exactly one concurrent claimant wins this update.
	offer, err = s.offers.UpdateStatus(ctx, offerID,
		model.StatusInvoicePaid, model.StatusClaimed,
		repository.OfferUpdate{ValidForS: &s.cfg.ClaimValidForS})
	if err != nil {
		return nil, err
	}

	bond := offer.BondAmount()
	token, err := cashu.DecodeToken(bondToken)
	if err != nil {
		s.revertClaim(ctx, offerID)
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	if cashu.SumProofs(token.Proofs) != bond {
		s.revertClaim(ctx, offerID)
		return nil, errs.ErrBondMismatch
	}

	redeemed, err := s.wallet.Receive(ctx, bondToken)
	if err != nil {
		s.revertClaim(ctx, offerID)
		return nil, err
	}
	if cashu.SumProofs(redeemed) != bond {
		s.revertClaim(ctx, offerID)
		return nil, errs.ErrRedemptionMismatch
	}

	// Claim row and bond ledger rows land in one transaction; a store
	// failure leaves the offer claimable again.
	claim, err := s.claims.CreateWithBond(ctx, &model.Claim{
		OfferID:   offerID,
		Pubkey:    takerPubkey,
		CreatedAt: s.nowUnix(),
	}, s.ledgerRows(offerID, redeemed, model.ProofUnspent))
	if err != nil {
		s.revertClaim(ctx, offerID)
		return nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	s.notifier.Emit(ctx, notify.NewClaim(claim, takerPubkey))
	return claim, nil
}

// revertClaim undoes the tentative CLAIMED flip after a failed bond check or
// claim store, restoring the funded window.
func (s *Offers) revertClaim(ctx context.Context, offerID int64) {
	_, err := s.offers.UpdateStatus(ctx, offerID,
		model.StatusClaimed, model.StatusInvoicePaid,
		repository.OfferUpdate{ValidForS: &s.cfg.FundedValidForS})
	if err != nil {
		s.logger.Error("revert claim flip", zap.Int64("offerID", offerID), zap.Error(err))
	}
}

// ReceiptInput is the taker's proof of fiat payment: exactly one of
// ReceiptImg or Skip must be supplied.
type ReceiptInput struct {
	ReceiptImg string
	Skip       bool
	Reason     string
}

// SubmitReceipt records the taker's payment receipt (or an explicit skip) and
// moves the offer to RECEIPT_SUBMITTED, starting the maker's feedback window.
func (s *Offers) SubmitReceipt(ctx context.Context, offerID int64, takerPubkey string, in ReceiptInput) (*model.Receipt, error) {
	if in.Skip == (in.ReceiptImg != "") {
		return nil, fmt.Errorf("%w: either receipt image or skip is required", errs.ErrInvalidRequest)
	}

	claim, err := s.claims.GetByOfferID(ctx, offerID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if claim.Pubkey != takerPubkey {
		return nil, errs.ErrUnauthorized
	}

	// The conditional update is the precondition check; it loses to any
	// concurrent transition away from CLAIMED.
	paidAt := s.nowUnix()
	offer, err := s.offers.UpdateStatus(ctx, offerID,
		model.StatusClaimed, model.StatusReceiptSubmitted,
		repository.OfferUpdate{
			ValidForS:      &s.cfg.ReceiptValidForS,
			PaidAt:         &paidAt,
			ReceiptSkipped: &in.Skip,
		})
	if err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Create(ctx, &model.Receipt{
		OfferID:    offerID,
		Pubkey:     takerPubkey,
		ReceiptImg: in.ReceiptImg,
		Skipped:    in.Skip,
		Reason:     in.Reason,
		CreatedAt:  paidAt,
	})
	if err != nil {
		if _, revErr := s.offers.UpdateStatus(ctx, offerID,
			model.StatusReceiptSubmitted, model.StatusClaimed,
			repository.OfferUpdate{ValidForS: &s.cfg.ClaimValidForS}); revErr != nil {
			s.logger.Error("revert receipt flip", zap.Int64("offerID", offerID), zap.Error(revErr))
		}
		return nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	if in.Skip {
		s.notifier.Emit(ctx, notify.ReceiptSkipped(offerID, claim.Pubkey, offer.Pubkey))
	} else {
		s.notifier.Emit(ctx, notify.NewReceipt(receipt, claim.Pubkey, offer.Pubkey))
	}
	return receipt, nil
}
