package service

import (
	"context"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
)

// ListExpired returns offers whose deadline has passed and that are still in
// a non-terminal state.
func (s *Offers) ListExpired(ctx context.Context) ([]model.Offer, error) {
	return s.offers.ListExpired(ctx, s.nowUnix())
}

// Expire forces an offer past its deadline into EXPIRED. What moves depends
// on how far the offer got:
//
//   - CREATED / INVOICE_CREATED: nothing was escrowed, plain transition.
//   - INVOICE_PAID / CLAIMED / MARKED_WITH_ISSUE / FOREFEIT: the full funded
//     amount is refunded to the maker; a posted taker bond is forfeited.
//   - RECEIPT_SUBMITTED: the taker delivered and was never disputed in time,
//     so the sweep pays out the default split, tagged EXPIRED.
//
// The status guard makes re-entrant sweeps on an already-moved offer fail
// with InvalidState and no effect.
func (s *Offers) Expire(ctx context.Context, offer *model.Offer) error {
	switch offer.Status {
	case model.StatusCreated, model.StatusInvoiceCreated:
		updated, err := s.offers.UpdateStatus(ctx, offer.ID,
			offer.Status, model.StatusExpired, repository.OfferUpdate{})
		if err != nil {
			return err
		}
		s.notifier.Emit(ctx, notify.UpdateOffer(updated))
		return nil

	case model.StatusInvoicePaid, model.StatusClaimed, model.StatusMarkedWithIssue, model.StatusForfeit:
		_, _, err := s.settle(ctx, offer, s.refundSplit(offer), model.StatusExpired, repository.OfferUpdate{})
		return err

	case model.StatusReceiptSubmitted:
		_, _, err := s.settle(ctx, offer, s.defaultSplit(offer), model.StatusExpired, repository.OfferUpdate{})
		return err

	default:
		return errs.ErrInvalidState
	}
}
