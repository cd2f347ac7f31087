package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

func state(a, b, t uint64, version uint64) model.PoolState {
	return model.PoolState{
		Pair:        model.Pair{A: "a", B: "b"},
		Fee:         3000,
		ReserveA:    fixedpoint.FromUint64(a),
		ReserveB:    fixedpoint.FromUint64(b),
		TotalShares: fixedpoint.FromUint64(t),
		Version:     version,
	}
}

func requireViolation(t *testing.T, err error, rule string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, model.IsFatal(err), "expected fatal error, got %v", err)
	var iv *model.InvariantViolation
	require.True(t, errors.As(err, &iv))
	require.Equal(t, rule, iv.Rule)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(state(0, 0, 0, 0)))
	require.NoError(t, Validate(state(1, 1, 1, 3)))

	requireViolation(t, Validate(state(10, 0, 5, 1)), "empty")
	requireViolation(t, Validate(state(0, 0, 5, 1)), "empty")

	reversed := state(1, 1, 1, 1)
	reversed.Pair = model.Pair{A: "b", B: "a"}
	requireViolation(t, Validate(reversed), "pair")

	over := state(1, 1, 1, 1)
	over.ReserveA.AddUint64(&fixedpoint.MaxReserve, 1)
	requireViolation(t, Validate(over), "bound")
}

func TestCheckInvariantSwap(t *testing.T) {
	prev := state(100000, 100000, 100000, 1)

	require.NoError(t, CheckInvariant(prev, state(100100, 99901, 100000, 2), model.OpSwapExactIn))
	requireViolation(t, CheckInvariant(prev, state(100100, 99800, 100000, 2), model.OpSwapExactIn), "product")
	requireViolation(t, CheckInvariant(prev, state(100100, 99901, 100001, 2), model.OpSwapExactIn), "swap")
	requireViolation(t, CheckInvariant(prev, state(100100, 99901, 100000, 3), model.OpSwapExactIn), "version")
}

func TestCheckInvariantLiquidity(t *testing.T) {
	empty := state(0, 0, 0, 0)
	require.NoError(t, CheckInvariant(empty, state(100000, 100000, 100000, 1), model.OpAddLiquidity))
	requireViolation(t, CheckInvariant(empty, state(100000, 100000, 100001, 1), model.OpAddLiquidity), "seed")

	prev := state(1000, 4000, 2000, 1)
	require.NoError(t, CheckInvariant(prev, state(2000, 8000, 4000, 2), model.OpAddLiquidity))
	requireViolation(t, CheckInvariant(prev, state(2000, 8000, 4001, 2), model.OpAddLiquidity), "share-value")

	require.NoError(t, CheckInvariant(prev, state(500, 2000, 1000, 2), model.OpRemoveLiquidity))
	require.NoError(t, CheckInvariant(prev, state(0, 0, 0, 2), model.OpRemoveLiquidity))
	requireViolation(t, CheckInvariant(prev, state(499, 2000, 1000, 2), model.OpRemoveLiquidity), "share-value")
	requireViolation(t, CheckInvariant(prev, state(500, 2000, 2000, 2), model.OpRemoveLiquidity), "withdraw")
}
