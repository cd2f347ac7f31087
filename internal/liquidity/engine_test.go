package liquidity

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/pool"
)

var pair = model.Pair{A: "a", B: "b"}

func amt(v uint64) model.Amount { return fixedpoint.FromUint64(v) }

func empty() model.PoolState {
	return model.PoolState{Pair: pair, Fee: 3000}
}

func funded(ra, rb, t uint64) model.PoolState {
	return model.PoolState{
		Pair:        pair,
		Fee:         3000,
		ReserveA:    amt(ra),
		ReserveB:    amt(rb),
		TotalShares: amt(t),
		Version:     4,
	}
}

func TestSeedDeposit(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	state := empty()

	in, err := e.AddLiquidity(state, "alice", amt(100000), amt(100000), amt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(100000), in.Outcome.SharesMinted.Uint64())
	require.Equal(t, uint64(100000), in.Next.TotalShares.Uint64())
	require.Equal(t, uint64(1), in.Next.Version)
	require.NoError(t, pool.CheckInvariant(state, in.Next, in.Request.Kind))

	require.Equal(t, []model.Leg{
		{Token: "a", From: "alice", To: state.Account(), Amount: amt(100000)},
		{Token: "b", From: "alice", To: state.Account(), Amount: amt(100000)},
		{Token: state.ShareToken(), To: "alice", Amount: amt(100000)},
	}, in.Legs)
}

func TestSeedDepositFloor(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	_, err := e.AddLiquidity(empty(), "alice", amt(999), amt(1000), amt(0))
	require.ErrorIs(t, err, model.ErrInsufficientInitialLiquidity)

	noFloor := NewEngine(Config{}, nil)
	in, err := noFloor.AddLiquidity(empty(), "alice", amt(1), amt(4), amt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(2), in.Outcome.SharesMinted.Uint64())
}

func TestProportionalDeposit(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	state := funded(1000, 4000, 2000)

	in, err := e.AddLiquidity(state, "bob", amt(100), amt(500), amt(200))
	require.NoError(t, err)
	require.Equal(t, uint64(200), in.Outcome.SharesMinted.Uint64())
	require.Equal(t, uint64(400), in.Outcome.AmountB.Uint64(), "excess B is not debited")
	require.Equal(t, uint64(1100), in.Next.ReserveA.Uint64())
	require.Equal(t, uint64(4400), in.Next.ReserveB.Uint64())
	require.Equal(t, uint64(2200), in.Next.TotalShares.Uint64())
	require.NoError(t, pool.CheckInvariant(state, in.Next, in.Request.Kind))

	_, err = e.AddLiquidity(state, "bob", amt(100), amt(399), amt(0))
	require.ErrorIs(t, err, model.ErrProportionMismatch)

	_, err = e.AddLiquidity(state, "bob", amt(100), amt(400), amt(201))
	require.ErrorIs(t, err, model.ErrSlippageExceeded)

	_, err = e.AddLiquidity(state, "bob", amt(0), amt(400), amt(0))
	require.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestDepositRoundsAgainstDepositor(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	state := funded(3000, 1000, 1000)

	in, err := e.AddLiquidity(state, "bob", amt(1), amt(1), amt(0))
	require.ErrorIs(t, err, model.ErrInvalidAmount, "1*1000/3000 mints zero shares")
	require.Empty(t, in.Legs)

	in, err = e.AddLiquidity(state, "bob", amt(10), amt(10), amt(0))
	require.NoError(t, err)
	// requiredB = ceil(10*1000/3000) = 4, shares = min(3, 4) = 3
	require.Equal(t, uint64(4), in.Outcome.AmountB.Uint64())
	require.Equal(t, uint64(3), in.Outcome.SharesMinted.Uint64())
}

func TestRemoveLiquidity(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	state := funded(1000, 4000, 2000)

	in, err := e.RemoveLiquidity(state, "alice", amt(500), amt(250), amt(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(250), in.Outcome.AmountA.Uint64())
	require.Equal(t, uint64(1000), in.Outcome.AmountB.Uint64())
	require.Equal(t, []model.Leg{
		{Token: state.ShareToken(), From: "alice", Amount: amt(500)},
		{Token: "a", From: state.Account(), To: "alice", Amount: amt(250)},
		{Token: "b", From: state.Account(), To: "alice", Amount: amt(1000)},
	}, in.Legs)
	require.NoError(t, pool.CheckInvariant(state, in.Next, in.Request.Kind))

	_, err = e.RemoveLiquidity(state, "alice", amt(500), amt(251), amt(0))
	require.ErrorIs(t, err, model.ErrSlippageExceeded)

	_, err = e.RemoveLiquidity(state, "alice", amt(0), amt(0), amt(0))
	require.ErrorIs(t, err, model.ErrInvalidShareAmount)

	_, err = e.RemoveLiquidity(state, "alice", amt(2001), amt(0), amt(0))
	require.ErrorIs(t, err, model.ErrInvalidShareAmount)
}

func TestRemoveAllEmptiesThenReseed(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	state := funded(1000, 4000, 2000)

	out, err := e.RemoveLiquidity(state, "alice", amt(2000), amt(0), amt(0))
	require.NoError(t, err)
	require.True(t, out.Next.IsEmpty())
	require.Equal(t, uint64(1000), out.Outcome.AmountA.Uint64())
	require.Equal(t, uint64(4000), out.Outcome.AmountB.Uint64())
	require.NoError(t, pool.CheckInvariant(state, out.Next, out.Request.Kind))

	in, err := e.AddLiquidity(out.Next, "carol", amt(5000), amt(5000), amt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(5000), in.Outcome.SharesMinted.Uint64())
	require.Equal(t, out.Next.Version+1, in.Next.Version)
	require.Equal(t, state.Fee, in.Next.Fee)
}

func TestSingleSided(t *testing.T) {
	state := funded(100000, 100000, 100000)

	proportional := NewEngine(DefaultConfig(), nil)
	_, err := proportional.AddSingleSided(state, "bob", "a", amt(1000), amt(0))
	require.ErrorIs(t, err, model.ErrProportionMismatch)

	cfg := DefaultConfig()
	cfg.Policy = PolicySingleSided
	e := NewEngine(cfg, nil)

	in, err := e.AddSingleSided(state, "bob", "a", amt(1000), amt(0))
	require.NoError(t, err)
	// fee on 500 is 2 (rounded up), floor(sqrt(10099800000)) - 100000 = 497
	require.Equal(t, uint64(2), in.Outcome.Fee.Uint64())
	require.Equal(t, uint64(497), in.Outcome.SharesMinted.Uint64())
	require.Equal(t, uint64(101000), in.Next.ReserveA.Uint64())
	require.Equal(t, uint64(100000), in.Next.ReserveB.Uint64())
	require.NoError(t, pool.CheckInvariant(state, in.Next, in.Request.Kind))

	_, err = e.AddSingleSided(empty(), "bob", "a", amt(1000), amt(0))
	require.ErrorIs(t, err, model.ErrPoolEmpty)
	_, err = e.AddSingleSided(state, "bob", "c", amt(1000), amt(0))
	require.ErrorIs(t, err, model.ErrInvalidToken)
	_, err = e.AddSingleSided(state, "bob", "a", amt(1000), amt(498))
	require.ErrorIs(t, err, model.ErrSlippageExceeded)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyProportional, p)

	p, err = ParsePolicy("single-sided")
	require.NoError(t, err)
	require.Equal(t, PolicySingleSided, p)

	_, err = ParsePolicy("auto-swap")
	require.Error(t, err)
}

func TestPropertyNoFreeLiquidity(t *testing.T) {
	e := NewEngine(Config{}, nil)
	rapid.Check(t, func(t *rapid.T) {
		state := funded(
			rapid.Uint64Range(1, 1e18).Draw(t, "reserveA"),
			rapid.Uint64Range(1, 1e18).Draw(t, "reserveB"),
			rapid.Uint64Range(1, 1e18).Draw(t, "shares"),
		)
		amountA := amt(rapid.Uint64Range(1, 1e18).Draw(t, "amountA"))
		amountB := amt(rapid.Uint64Range(1, 1e18).Draw(t, "amountB"))

		dep, err := e.AddLiquidity(state, "bob", amountA, amountB, amt(0))
		if err != nil {
			t.Skip(err.Error())
		}
		if err := pool.CheckInvariant(state, dep.Next, dep.Request.Kind); err != nil {
			t.Fatalf("deposit invariant: %v", err)
		}

		wd, err := e.RemoveLiquidity(dep.Next, "bob", dep.Outcome.SharesMinted, amt(0), amt(0))
		if err != nil {
			t.Skip(err.Error())
		}
		if err := pool.CheckInvariant(dep.Next, wd.Next, wd.Request.Kind); err != nil {
			t.Fatalf("withdraw invariant: %v", err)
		}
		if wd.Outcome.AmountA.Gt(&dep.Outcome.AmountA) || wd.Outcome.AmountB.Gt(&dep.Outcome.AmountB) {
			t.Fatalf("withdrew (%s, %s) after depositing (%s, %s)",
				wd.Outcome.AmountA.Dec(), wd.Outcome.AmountB.Dec(), dep.Outcome.AmountA.Dec(), dep.Outcome.AmountB.Dec())
		}
	})
}
