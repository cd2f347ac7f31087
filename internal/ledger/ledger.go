// Package ledger defines the external balance port the coordinator settles
// through, with an in-memory and a key-value implementation.
package ledger

import (
	"context"
	"fmt"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

// Port moves balances between holders. An empty from mints and an empty to
// burns.
type Port interface {
	Transfer(ctx context.Context, token model.TokenID, from, to model.Holder, amount model.Amount) error
	BalanceOf(ctx context.Context, token model.TokenID, holder model.Holder) (model.Amount, error)
}

// Batcher is implemented by ledgers that can apply several legs atomically.
type Batcher interface {
	TransferBatch(ctx context.Context, legs []model.Leg) error
}

type balanceKey struct {
	token  model.TokenID
	holder model.Holder
}

// applyLegs computes the balances after legs, reading current values through
// get. It fails without side effects when a debit would go negative.
func applyLegs(legs []model.Leg, get func(balanceKey) (model.Amount, error)) (map[balanceKey]model.Amount, error) {
	touched := make(map[balanceKey]model.Amount)
	lookup := func(k balanceKey) (model.Amount, error) {
		if v, ok := touched[k]; ok {
			return v, nil
		}
		return get(k)
	}

	for _, leg := range legs {
		if leg.IsMint() && leg.IsBurn() {
			return nil, fmt.Errorf("%w: leg without holders", model.ErrInvalidInstruction)
		}
		if !leg.IsMint() {
			k := balanceKey{leg.Token, leg.From}
			bal, err := lookup(k)
			if err != nil {
				return nil, err
			}
			next, err := fixedpoint.Sub(bal, leg.Amount)
			if err != nil {
				return nil, fmt.Errorf("%w: %s holds %s %s, needs %s",
					model.ErrInsufficientBalance, leg.From, bal.Dec(), leg.Token, leg.Amount.Dec())
			}
			touched[k] = next
		}
		if !leg.IsBurn() {
			k := balanceKey{leg.Token, leg.To}
			bal, err := lookup(k)
			if err != nil {
				return nil, err
			}
			next, err := fixedpoint.Add(bal, leg.Amount)
			if err != nil {
				return nil, err
			}
			touched[k] = next
		}
	}
	return touched, nil
}
