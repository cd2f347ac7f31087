package model

import (
	"strings"

	"github.com/holiman/uint256"

	"ammSettle/internal/fixedpoint"
)

// Amount is a count of base units.
type Amount = uint256.Int

// PoolState is a value snapshot of one pool. Version increases by one on
// every committed instruction and is the optimistic-concurrency token.
type PoolState struct {
	Pair        Pair
	Fee         fixedpoint.FeeRate
	ReserveA    Amount
	ReserveB    Amount
	TotalShares Amount
	Version     uint64
}

// IsEmpty reports whether the pool holds no liquidity.
func (s PoolState) IsEmpty() bool {
	return s.TotalShares.IsZero() && s.ReserveA.IsZero() && s.ReserveB.IsZero()
}

// Reserve returns the reserve held for token t.
func (s PoolState) Reserve(t TokenID) Amount {
	if t == s.Pair.A {
		return s.ReserveA
	}
	return s.ReserveB
}

// Oriented returns (reserveIn, reserveOut) for a swap paying tokenIn.
func (s PoolState) Oriented(tokenIn TokenID) (Amount, Amount) {
	if tokenIn == s.Pair.A {
		return s.ReserveA, s.ReserveB
	}
	return s.ReserveB, s.ReserveA
}

// WithReserves returns a copy with the reserves set, keyed by token.
func (s PoolState) WithReserves(t TokenID, reserveT, reserveOther Amount) PoolState {
	out := s
	if t == s.Pair.A {
		out.ReserveA, out.ReserveB = reserveT, reserveOther
	} else {
		out.ReserveA, out.ReserveB = reserveOther, reserveT
	}
	return out
}

// Account is the ledger holder that keeps the pool's reserves.
func (s PoolState) Account() Holder {
	return PoolAccount(s.Pair)
}

// ShareToken is the ledger token representing liquidity shares of the pool.
func (s PoolState) ShareToken() TokenID {
	return ShareToken(s.Pair)
}

const (
	poolAccountPrefix = "pool:"
	shareTokenPrefix  = "lp:"
)

// PoolAccount returns the reserve holder of a pair.
func PoolAccount(p Pair) Holder {
	return Holder(poolAccountPrefix + p.Key())
}

// ShareToken returns the liquidity share token of a pair.
func ShareToken(p Pair) TokenID {
	return TokenID(shareTokenPrefix + p.Key())
}

// IsPoolAccount reports whether h is in the namespace reserved for pool
// reserve accounts. No caller may act as such a holder.
func IsPoolAccount(h Holder) bool {
	return strings.HasPrefix(string(h), poolAccountPrefix)
}

// IsReservedToken reports whether t is in a namespace the engine mints
// itself, so it can never be one side of a pair.
func IsReservedToken(t TokenID) bool {
	return strings.HasPrefix(string(t), shareTokenPrefix) || strings.HasPrefix(string(t), poolAccountPrefix)
}

// PoolView is the read-only view exposed to callers.
type PoolView struct {
	Pair        Pair   `json:"pair"`
	Fee         uint32 `json:"fee"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	TotalShares string `json:"total_shares"`
	Version     uint64 `json:"version"`
}

// View converts the state into its display record.
func (s PoolState) View() PoolView {
	return PoolView{
		Pair:        s.Pair,
		Fee:         uint32(s.Fee),
		ReserveA:    s.ReserveA.Dec(),
		ReserveB:    s.ReserveB.Dec(),
		TotalShares: s.TotalShares.Dec(),
		Version:     s.Version,
	}
}

// StateFromView parses a view back into a state.
func StateFromView(v PoolView) (PoolState, error) {
	pair, err := NewPair(v.Pair.A, v.Pair.B)
	if err != nil {
		return PoolState{}, err
	}
	ra, err := fixedpoint.Parse(v.ReserveA)
	if err != nil {
		return PoolState{}, err
	}
	rb, err := fixedpoint.Parse(v.ReserveB)
	if err != nil {
		return PoolState{}, err
	}
	ts, err := fixedpoint.Parse(v.TotalShares)
	if err != nil {
		return PoolState{}, err
	}
	return PoolState{
		Pair:        pair,
		Fee:         fixedpoint.FeeRate(v.Fee),
		ReserveA:    ra,
		ReserveB:    rb,
		TotalShares: ts,
		Version:     v.Version,
	}, nil
}
