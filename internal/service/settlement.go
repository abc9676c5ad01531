package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
)

// split is a settlement outcome in sats. Whatever the escrow holds beyond
// maker+taker stays with the platform as change.
type split struct {
	maker int64
	taker int64
}

// defaultSplit is the maker-approved outcome: the taker earns the sats, the
// taker fees and their bond back; the maker gets the bond component back.
func (s *Offers) defaultSplit(offer *model.Offer) split {
	return split{
		maker: offer.BondAmount(),
		taker: offer.SatsAmount +
			offer.TakerFeeFlatRate + offer.TakerFeePercentage +
			offer.BondAmount(),
	}
}

// refundSplit returns the full funded amount to the maker. A posted taker
// bond is not part of it and stays behind as platform change.
func (s *Offers) refundSplit(offer *model.Offer) split {
	return split{maker: offer.TotalEscrowAmount(), taker: 0}
}

// settle executes a settlement: it spends the offer's UNSPENT escrow into
// outputs locked to the maker and taker per the split, classifies the
// resulting proofs into refund and reward tokens, and commits ledger, claim
// and offer updates as one transaction. Any wallet failure aborts with no
// state committed.
func (s *Offers) settle(
	ctx context.Context, offer *model.Offer, sp split, to model.OfferStatus, upd repository.OfferUpdate,
) (*model.Offer, *model.Claim, error) {
	unspent, err := s.proofs.UnspentByOffer(ctx, offer.ID)
	if err != nil {
		return nil, nil, err
	}
	inputs := make([]cashu.Proof, 0, len(unspent))
	var available int64
	for _, p := range unspent {
		inputs = append(inputs, cashu.Proof{ID: p.KeysetID, Amount: p.Amount, Secret: p.Secret, C: p.C})
		available += p.Amount
	}
	need := sp.maker + sp.taker
	if available < need {
		return nil, nil, fmt.Errorf("%w: offer %d holds %d, settlement needs %d",
			errs.ErrInsufficientEscrow, offer.ID, available, need)
	}

	makerTarget := cashu.P2PKTarget(offer.Pubkey)
	var takerTarget string
	if sp.taker > 0 {
		claim, err := s.claims.GetByOfferID(ctx, offer.ID)
		if err != nil {
			return nil, nil, err
		}
		takerTarget = cashu.P2PKTarget(claim.Pubkey)
	}

	keys, err := s.wallet.Keys(ctx)
	if err != nil {
		return nil, nil, err
	}
	var outputs []json.RawMessage
	if sp.maker > 0 {
		makerOuts, err := s.wallet.CreateLockedOutput(ctx, makerTarget, sp.maker, keys)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, makerOuts...)
	}
	if sp.taker > 0 {
		takerOuts, err := s.wallet.CreateLockedOutput(ctx, takerTarget, sp.taker, keys)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, takerOuts...)
	}

	res, err := s.wallet.Send(ctx, need, inputs, outputs)
	if err != nil {
		return nil, nil, err
	}

	// Classify send proofs by their embedded lock target. Anything locked to
	// neither participant is excluded from both tokens.
	var reward, refund []cashu.Proof
	for _, p := range res.Send {
		target, ok := cashu.ParseP2PKLock(p.Secret)
		if !ok {
			continue
		}
		switch target {
		case takerTarget:
			reward = append(reward, p)
		case makerTarget:
			refund = append(refund, p)
		}
	}
	if cashu.SumProofs(reward) != sp.taker || cashu.SumProofs(refund) != sp.maker {
		return nil, nil, fmt.Errorf("%w: locked outputs do not match requested split (maker %d/%d, taker %d/%d)",
			errs.ErrWalletUnavailable,
			cashu.SumProofs(refund), sp.maker, cashu.SumProofs(reward), sp.taker)
	}

	var rewardToken, refundToken string
	if len(reward) > 0 {
		if rewardToken, err = cashu.EncodeToken(cashu.Token{Mint: s.cfg.MintURL, Proofs: reward}); err != nil {
			return nil, nil, err
		}
	}
	if len(refund) > 0 {
		if refundToken, err = cashu.EncodeToken(cashu.Token{Mint: s.cfg.MintURL, Proofs: refund}); err != nil {
			return nil, nil, err
		}
	}

	pending := s.ledgerRows(offer.ID, append(append([]cashu.Proof{}, res.Keep...), res.Send...), model.ProofPending)
	if refundToken != "" {
		upd.Refund = &refundToken
	}

	updated, claim, err := s.offers.Settle(ctx, repository.SettleParams{
		OfferID:     offer.ID,
		From:        offer.Status,
		To:          to,
		SpentInputs: unspent,
		NewProofs:   pending,
		RewardToken: rewardToken,
		Update:      upd,
	})
	if err != nil {
		return nil, nil, err
	}

	s.notifier.Emit(ctx, notify.UpdateOffer(updated))
	if claim != nil {
		s.notifier.Emit(ctx, notify.UpdateClaim(claim, claim.Pubkey, updated.Pubkey))
	}
	return updated, claim, nil
}
