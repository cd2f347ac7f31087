package settlement

import (
	"fmt"

	"ammSettle/internal/liquidity"
	"ammSettle/internal/model"
	"ammSettle/internal/swap"
)

// Engines dispatches a request to the swap or liquidity engine by kind.
type Engines struct {
	Swap      *swap.Engine
	Liquidity *liquidity.Engine
}

func (e Engines) Quote(state model.PoolState, req model.Request) (model.Instruction, error) {
	if req.Pair != state.Pair {
		return model.Instruction{}, fmt.Errorf("%w: request for %s against pool %s", model.ErrInvalidInstruction, req.Pair, state.Pair)
	}
	switch req.Kind {
	case model.OpSwapExactIn:
		return e.Swap.QuoteExactInput(state, req.Holder, req.TokenIn, req.AmountIn, req.MinAmountOut)
	case model.OpSwapExactOut:
		return e.Swap.QuoteExactOutput(state, req.Holder, req.TokenIn, req.AmountOut, req.MaxAmountIn)
	case model.OpAddLiquidity:
		return e.Liquidity.AddLiquidity(state, req.Holder, req.AmountA, req.AmountB, req.MinShares)
	case model.OpAddSingleSided:
		return e.Liquidity.AddSingleSided(state, req.Holder, req.TokenIn, req.AmountIn, req.MinShares)
	case model.OpRemoveLiquidity:
		return e.Liquidity.RemoveLiquidity(state, req.Holder, req.Shares, req.MinAmountA, req.MinAmountB)
	default:
		return model.Instruction{}, fmt.Errorf("%w: unknown kind %q", model.ErrInvalidInstruction, req.Kind)
	}
}
