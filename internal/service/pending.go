package service

import (
	"context"
	"fmt"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/model"
)

// SyncPendingProofs reconciles the ledger with the mint: PENDING rows whose
// proof the mint now reports SPENT get a confirming SPENT row appended. It
// returns the number of proofs confirmed.
func (s *Offers) SyncPendingProofs(ctx context.Context, limit int) (int, error) {
	pending, err := s.proofs.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	inputs := make([]cashu.Proof, 0, len(pending))
	for _, p := range pending {
		inputs = append(inputs, cashu.Proof{ID: p.KeysetID, Amount: p.Amount, Secret: p.Secret, C: p.C})
	}
	states, err := s.wallet.CheckProofStates(ctx, inputs)
	if err != nil {
		return 0, err
	}
	if len(states) != len(pending) {
		return 0, fmt.Errorf("proof state check returned %d states for %d proofs", len(states), len(pending))
	}

	var confirmed []model.Proof
	for i, state := range states {
		if state != string(model.ProofSpent) {
			continue
		}
		row := pending[i]
		row.State = model.ProofSpent
		confirmed = append(confirmed, row)
	}
	if len(confirmed) == 0 {
		return 0, nil
	}
	if err := s.proofs.Insert(ctx, confirmed); err != nil {
		return 0, err
	}
	return len(confirmed), nil
}
