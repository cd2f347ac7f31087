package model

import (
	"time"

	"github.com/google/uuid"
)

// OpKind names the engine operation that produced an instruction.
type OpKind string

const (
	OpSwapExactIn     OpKind = "swap_exact_in"
	OpSwapExactOut    OpKind = "swap_exact_out"
	OpAddLiquidity    OpKind = "add_liquidity"
	OpAddSingleSided  OpKind = "add_single_sided"
	OpRemoveLiquidity OpKind = "remove_liquidity"
)

// IsSwap reports whether the operation is a swap.
func (k OpKind) IsSwap() bool {
	return k == OpSwapExactIn || k == OpSwapExactOut
}

// Request records the caller's parameters so the coordinator can re-run the
// originating engine against fresh state. Only the fields relevant to Kind
// are set.
type Request struct {
	Kind   OpKind
	Pair   Pair
	Holder Holder

	// swaps and single-sided deposits
	TokenIn      TokenID
	AmountIn     Amount
	MinAmountOut Amount
	AmountOut    Amount
	MaxAmountIn  Amount

	// deposits
	AmountA   Amount
	AmountB   Amount
	MinShares Amount

	// withdrawals
	Shares     Amount
	MinAmountA Amount
	MinAmountB Amount
}

// Leg is one ledger movement. An empty From mints and an empty To burns;
// both are only used for the pool's share token.
type Leg struct {
	Token  TokenID
	From   Holder
	To     Holder
	Amount Amount
}

// IsMint reports whether the leg creates units.
func (l Leg) IsMint() bool { return l.From == "" }

// IsBurn reports whether the leg destroys units.
func (l Leg) IsBurn() bool { return l.To == "" }

// Reverse returns the compensating leg.
func (l Leg) Reverse() Leg {
	return Leg{Token: l.Token, From: l.To, To: l.From, Amount: l.Amount}
}

// Outcome summarises the economic result of an instruction.
type Outcome struct {
	AmountIn     Amount
	AmountOut    Amount
	Fee          Amount
	AmountA      Amount
	AmountB      Amount
	SharesMinted Amount
	SharesBurned Amount
}

// Instruction is a computed, not yet applied, settlement. It is a pure value:
// dropping one needs no cleanup.
type Instruction struct {
	ID       string
	Request  Request
	Snapshot PoolState
	Next     PoolState
	Legs     []Leg
	Outcome  Outcome
	QuotedAt time.Time
}

// Equivalent reports whether two instructions describe the same settlement,
// ignoring identity and timestamps.
func (in Instruction) Equivalent(other Instruction) bool {
	if in.Request != other.Request || in.Snapshot != other.Snapshot || in.Next != other.Next {
		return false
	}
	if in.Outcome != other.Outcome || len(in.Legs) != len(other.Legs) {
		return false
	}
	for i := range in.Legs {
		if in.Legs[i] != other.Legs[i] {
			return false
		}
	}
	return true
}

// NewInstruction assigns a fresh id to a computed settlement.
func NewInstruction(req Request, snapshot, next PoolState, legs []Leg, outcome Outcome) Instruction {
	return Instruction{
		ID:       uuid.NewString(),
		Request:  req,
		Snapshot: snapshot,
		Next:     next,
		Legs:     legs,
		Outcome:  outcome,
		QuotedAt: time.Now().UTC(),
	}
}
