package service

import (
	"context"
	"fmt"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/payload"
	"github.com/openpleb/escrowd/internal/repository"
)

// FeedbackPayload is the maker's signed verdict on a submitted receipt.
type FeedbackPayload struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

// DisputePayload is the taker's signed answer to a maker-raised issue.
type DisputePayload struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

// SubmitFeedback processes the maker's verdict on a RECEIPT_SUBMITTED offer.
// COMPLETED settles with the default split; MARKED_WITH_ISSUE stores the
// complaint and extends the deadline by the issue grace window.
func (s *Offers) SubmitFeedback(ctx context.Context, offerID int64, signed payload.Signed[FeedbackPayload]) (*model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != model.StatusReceiptSubmitted {
		return nil, errs.ErrInvalidState
	}
	if !payload.Verify(signed.Payload, signed.Signature, signed.Nonce, signed.Timestamp, offer.Pubkey) {
		return nil, errs.ErrUnauthorized
	}

	switch model.OfferStatus(signed.Payload.Status) {
	case model.StatusCompleted:
		offer, _, err = s.settle(ctx, offer, s.defaultSplit(offer), model.StatusCompleted,
			repository.OfferUpdate{Feedback: &signed.Payload.Feedback})
		return offer, err

	case model.StatusMarkedWithIssue:
		extended := offer.ValidForS + s.cfg.IssueGraceS
		offer, err = s.offers.UpdateStatus(ctx, offerID,
			model.StatusReceiptSubmitted, model.StatusMarkedWithIssue,
			repository.OfferUpdate{
				ValidForS: &extended,
				Feedback:  &signed.Payload.Feedback,
			})
		if err != nil {
			return nil, err
		}
		s.notifier.Emit(ctx, notify.UpdateOffer(offer))
		return offer, nil

	default:
		return nil, fmt.Errorf("%w: feedback status %q", errs.ErrInvalidRequest, signed.Payload.Status)
	}
}

// CounterOrForfeit processes the taker's signed answer to an issue. COUNTER
// escalates to DISPUTED for admin resolution; FORFEIT surrenders and zeroes
// the deadline so the next sweep executes the refund-only settlement.
func (s *Offers) CounterOrForfeit(ctx context.Context, offerID int64, signed payload.Signed[DisputePayload]) (*model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != model.StatusMarkedWithIssue {
		return nil, errs.ErrInvalidState
	}

	claim, err := s.claims.GetByOfferID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !payload.Verify(signed.Payload, signed.Signature, signed.Nonce, signed.Timestamp, claim.Pubkey) {
		return nil, errs.ErrUnauthorized
	}

	switch model.DisputeResponse(signed.Payload.Response) {
	case model.DisputeCounter:
		offer, err = s.offers.UpdateStatus(ctx, offerID,
			model.StatusMarkedWithIssue, model.StatusDisputed,
			repository.OfferUpdate{FeedbackResponse: &signed.Payload.Message})

	case model.DisputeForfeit:
		zero := int64(0)
		offer, err = s.offers.UpdateStatus(ctx, offerID,
			model.StatusMarkedWithIssue, model.StatusForfeit,
			repository.OfferUpdate{
				FeedbackResponse: &signed.Payload.Message,
				ValidForS:        &zero,
			})

	default:
		return nil, fmt.Errorf("%w: dispute response %q", errs.ErrInvalidRequest, signed.Payload.Response)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(offer))
	return offer, nil
}

// ResolveDispute is the administrative settlement of a DISPUTED offer. Every
// path splits the same pot (sats + taker fees + both bonds); the platform
// fees stay with the platform regardless of outcome.
func (s *Offers) ResolveDispute(ctx context.Context, offerID int64, resolution model.Resolution, reason string) (*model.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != model.StatusDisputed {
		return nil, errs.ErrInvalidState
	}

	sp, err := resolutionSplit(offer, resolution)
	if err != nil {
		return nil, err
	}
	tagged := fmt.Sprintf("%s: %s", resolution, reason)
	offer, _, err = s.settle(ctx, offer, sp, model.StatusResolved,
		repository.OfferUpdate{ResolutionReason: &tagged})
	return offer, err
}

// resolutionSplit maps a resolution path onto a (maker, taker) pair. All
// paths sum to offer.ResolutionTotal().
func resolutionSplit(offer *model.Offer, resolution model.Resolution) (split, error) {
	total := offer.ResolutionTotal()
	bond := offer.BondAmount()
	switch resolution {
	case model.ResolutionReturn:
		return split{maker: total - bond, taker: bond}, nil
	case model.ResolutionMakerWins:
		return split{maker: total, taker: 0}, nil
	case model.ResolutionTakerWins:
		return split{maker: 0, taker: total}, nil
	case model.ResolutionSplit:
		half := total / 2
		return split{maker: half, taker: total - half}, nil
	default:
		return split{}, errs.ErrInvalidResolution
	}
}
