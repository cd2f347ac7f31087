// Package pool holds the pool invariants and the registry that maps a
// canonical pair to exactly one pool state.
package pool

import (
	"fmt"
	"math/big"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

// Validate checks the structural invariants of a single state.
func Validate(s model.PoolState) error {
	key := s.Pair.Key()
	if s.Pair.A == "" || s.Pair.B == "" || s.Pair.A >= s.Pair.B {
		return violation(key, "pair", "pair %q is not canonical", key)
	}
	if err := s.Fee.Validate(); err != nil {
		return violation(key, "fee", "%v", err)
	}
	for _, v := range []model.Amount{s.ReserveA, s.ReserveB, s.TotalShares} {
		if err := fixedpoint.CheckBound(v); err != nil {
			return violation(key, "bound", "%v", err)
		}
	}

	zeros := 0
	for _, v := range []model.Amount{s.ReserveA, s.ReserveB, s.TotalShares} {
		if v.IsZero() {
			zeros++
		}
	}
	if zeros != 0 && zeros != 3 {
		return violation(key, "empty", "reserves (%s, %s) with %s shares must be all zero or all positive",
			s.ReserveA.Dec(), s.ReserveB.Dec(), s.TotalShares.Dec())
	}
	return nil
}

// CheckInvariant compares a proposed state with the state it was derived
// from. Swaps may not decrease reserveA*reserveB. Deposits and withdrawals
// may not decrease the product per share squared.
func CheckInvariant(prev, next model.PoolState, kind model.OpKind) error {
	key := prev.Pair.Key()
	if err := Validate(next); err != nil {
		return err
	}
	if next.Pair != prev.Pair || next.Fee != prev.Fee {
		return violation(key, "identity", "pair or fee changed to %s at %s", next.Pair, next.Fee)
	}
	if next.Version != prev.Version+1 {
		return violation(key, "version", "version %d does not follow %d", next.Version, prev.Version)
	}

	kPrev := product(prev.ReserveA, prev.ReserveB)
	kNext := product(next.ReserveA, next.ReserveB)

	switch kind {
	case model.OpSwapExactIn, model.OpSwapExactOut:
		if prev.IsEmpty() {
			return violation(key, "swap", "swap against an empty pool")
		}
		if !next.TotalShares.Eq(&prev.TotalShares) {
			return violation(key, "swap", "share supply changed from %s to %s", prev.TotalShares.Dec(), next.TotalShares.Dec())
		}
		if kNext.Cmp(kPrev) < 0 {
			return violation(key, "product", "k decreased from %s to %s", kPrev, kNext)
		}

	case model.OpAddLiquidity, model.OpAddSingleSided:
		if !next.TotalShares.Gt(&prev.TotalShares) {
			return violation(key, "deposit", "share supply did not grow")
		}
		if prev.IsEmpty() {
			// Seeding: shares^2 <= reserveA*reserveB.
			tNext := toBig(next.TotalShares)
			if new(big.Int).Mul(tNext, tNext).Cmp(kNext) > 0 {
				return violation(key, "seed", "%s shares exceed sqrt(%s)", next.TotalShares.Dec(), kNext)
			}
			return nil
		}
		if err := perShare(key, prev, next, kPrev, kNext); err != nil {
			return err
		}

	case model.OpRemoveLiquidity:
		if !next.TotalShares.Lt(&prev.TotalShares) {
			return violation(key, "withdraw", "share supply did not shrink")
		}
		if next.IsEmpty() {
			return nil
		}
		if err := perShare(key, prev, next, kPrev, kNext); err != nil {
			return err
		}

	default:
		return violation(key, "kind", "unknown operation %q", kind)
	}
	return nil
}

// perShare requires kNext * T_prev^2 >= kPrev * T_next^2.
func perShare(key string, prev, next model.PoolState, kPrev, kNext *big.Int) error {
	tPrev := toBig(prev.TotalShares)
	tNext := toBig(next.TotalShares)
	lhs := new(big.Int).Mul(kNext, new(big.Int).Mul(tPrev, tPrev))
	rhs := new(big.Int).Mul(kPrev, new(big.Int).Mul(tNext, tNext))
	if lhs.Cmp(rhs) < 0 {
		return violation(key, "share-value", "k/T^2 decreased: k %s -> %s, T %s -> %s",
			kPrev, kNext, prev.TotalShares.Dec(), next.TotalShares.Dec())
	}
	return nil
}

func product(a, b model.Amount) *big.Int {
	return new(big.Int).Mul(toBig(a), toBig(b))
}

func toBig(v model.Amount) *big.Int {
	return v.ToBig()
}

func violation(pool, rule, format string, args ...any) error {
	return &model.InvariantViolation{Pool: pool, Rule: rule, Detail: fmt.Sprintf(format, args...)}
}
