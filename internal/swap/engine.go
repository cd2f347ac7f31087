// Package swap prices swaps against a pool snapshot under the
// constant-product rule. Quoting is pure: the engine returns an
// instruction and never touches shared state.
package swap

import (
	"fmt"

	"go.uber.org/zap"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// AmountOut returns floor(in*(D-f)*rOut / (rIn*D + in*(D-f))).
func AmountOut(reserveIn, reserveOut, amountIn model.Amount, fee fixedpoint.FeeRate) (model.Amount, error) {
	inWithFee, err := fixedpoint.Mul(amountIn, fee.Complement())
	if err != nil {
		return model.Amount{}, err
	}
	scaledReserve, err := fixedpoint.Mul(reserveIn, fee.Denominator())
	if err != nil {
		return model.Amount{}, err
	}
	den, err := fixedpoint.Add(scaledReserve, inWithFee)
	if err != nil {
		return model.Amount{}, err
	}
	return fixedpoint.MulDiv(inWithFee, reserveOut, den, fixedpoint.RoundDown)
}

// AmountIn returns ceil(rIn*out*D / ((rOut-out)*(D-f))). out must be below rOut.
func AmountIn(reserveIn, reserveOut, amountOut model.Amount, fee fixedpoint.FeeRate) (model.Amount, error) {
	remaining, err := fixedpoint.Sub(reserveOut, amountOut)
	if err != nil {
		return model.Amount{}, err
	}
	num, err := fixedpoint.Mul(reserveIn, amountOut)
	if err != nil {
		return model.Amount{}, err
	}
	den, err := fixedpoint.Mul(remaining, fee.Complement())
	if err != nil {
		return model.Amount{}, err
	}
	return fixedpoint.MulDiv(num, fee.Denominator(), den, fixedpoint.RoundUp)
}

// QuoteExactInput prices selling amountIn of tokenIn.
func (e *Engine) QuoteExactInput(state model.PoolState, holder model.Holder, tokenIn model.TokenID, amountIn, minAmountOut model.Amount) (model.Instruction, error) {
	if err := checkRequest(state, holder, tokenIn, amountIn); err != nil {
		return model.Instruction{}, err
	}

	reserveIn, reserveOut := state.Oriented(tokenIn)
	newReserveIn, err := boundedAdd(reserveIn, amountIn)
	if err != nil {
		return model.Instruction{}, err
	}

	amountOut, err := AmountOut(reserveIn, reserveOut, amountIn, state.Fee)
	if err != nil {
		return model.Instruction{}, err
	}
	if amountOut.IsZero() || !amountOut.Lt(&reserveOut) {
		return model.Instruction{}, fmt.Errorf("%w: %s %s in yields %s of reserve %s",
			model.ErrInsufficientLiquidity, amountIn.Dec(), tokenIn, amountOut.Dec(), reserveOut.Dec())
	}
	if amountOut.Lt(&minAmountOut) {
		return model.Instruction{}, fmt.Errorf("%w: output %s below minimum %s",
			model.ErrSlippageExceeded, amountOut.Dec(), minAmountOut.Dec())
	}

	req := model.Request{
		Kind:         model.OpSwapExactIn,
		Pair:         state.Pair,
		Holder:       holder,
		TokenIn:      tokenIn,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
	}
	in, err := e.build(req, state, tokenIn, amountIn, amountOut, newReserveIn)
	if err != nil {
		return model.Instruction{}, err
	}
	e.logger.Debug("quoted exact input",
		zap.String("pool", state.Pair.Key()),
		zap.String("token_in", string(tokenIn)),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", amountOut.Dec()),
		zap.Uint64("version", state.Version),
	)
	return in, nil
}

// QuoteExactOutput prices buying exactly amountOut of the token opposite to
// tokenIn. A zero maxAmountIn leaves the input unbounded.
func (e *Engine) QuoteExactOutput(state model.PoolState, holder model.Holder, tokenIn model.TokenID, amountOut, maxAmountIn model.Amount) (model.Instruction, error) {
	if err := checkRequest(state, holder, tokenIn, amountOut); err != nil {
		return model.Instruction{}, err
	}

	reserveIn, reserveOut := state.Oriented(tokenIn)
	if !amountOut.Lt(&reserveOut) {
		return model.Instruction{}, fmt.Errorf("%w: requested %s of reserve %s",
			model.ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	amountIn, err := AmountIn(reserveIn, reserveOut, amountOut, state.Fee)
	if err != nil {
		return model.Instruction{}, err
	}
	if !maxAmountIn.IsZero() && amountIn.Gt(&maxAmountIn) {
		return model.Instruction{}, fmt.Errorf("%w: input %s above maximum %s",
			model.ErrExcessiveInput, amountIn.Dec(), maxAmountIn.Dec())
	}
	newReserveIn, err := boundedAdd(reserveIn, amountIn)
	if err != nil {
		return model.Instruction{}, err
	}

	req := model.Request{
		Kind:        model.OpSwapExactOut,
		Pair:        state.Pair,
		Holder:      holder,
		TokenIn:     tokenIn,
		AmountOut:   amountOut,
		MaxAmountIn: maxAmountIn,
	}
	in, err := e.build(req, state, tokenIn, amountIn, amountOut, newReserveIn)
	if err != nil {
		return model.Instruction{}, err
	}
	e.logger.Debug("quoted exact output",
		zap.String("pool", state.Pair.Key()),
		zap.String("token_in", string(tokenIn)),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", amountOut.Dec()),
		zap.Uint64("version", state.Version),
	)
	return in, nil
}

func (e *Engine) build(req model.Request, state model.PoolState, tokenIn model.TokenID, amountIn, amountOut, newReserveIn model.Amount) (model.Instruction, error) {
	_, reserveOut := state.Oriented(tokenIn)
	newReserveOut, err := fixedpoint.Sub(reserveOut, amountOut)
	if err != nil {
		return model.Instruction{}, err
	}
	fee, err := fixedpoint.FeeAmount(amountIn, state.Fee)
	if err != nil {
		return model.Instruction{}, err
	}

	next := state.WithReserves(tokenIn, newReserveIn, newReserveOut)
	next.Version = state.Version + 1

	tokenOut := state.Pair.Other(tokenIn)
	pool := state.Account()
	legs := []model.Leg{
		{Token: tokenIn, From: req.Holder, To: pool, Amount: amountIn},
		{Token: tokenOut, From: pool, To: req.Holder, Amount: amountOut},
	}
	outcome := model.Outcome{AmountIn: amountIn, AmountOut: amountOut, Fee: fee}
	return model.NewInstruction(req, state, next, legs, outcome), nil
}

// checkRequest validates in the order token, amount, pool, holder.
func checkRequest(state model.PoolState, holder model.Holder, tokenIn model.TokenID, amount model.Amount) error {
	if !state.Pair.Contains(tokenIn) {
		return fmt.Errorf("%w: %s is not in pool %s", model.ErrInvalidToken, tokenIn, state.Pair)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: swap amount must be positive", model.ErrInvalidAmount)
	}
	if state.IsEmpty() {
		return fmt.Errorf("%w: %s", model.ErrPoolEmpty, state.Pair)
	}
	if holder == "" || model.IsPoolAccount(holder) {
		return fmt.Errorf("%w: invalid holder %q", model.ErrInvalidInstruction, holder)
	}
	return nil
}

func boundedAdd(reserve, amount model.Amount) (model.Amount, error) {
	sum, err := fixedpoint.Add(reserve, amount)
	if err != nil {
		return model.Amount{}, err
	}
	if err := fixedpoint.CheckBound(sum); err != nil {
		return model.Amount{}, err
	}
	return sum, nil
}
