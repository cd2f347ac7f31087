// Package liquidity computes share issuance and redemption for deposits and
// withdrawals. Like the swap engine it only produces instructions.
package liquidity

import (
	"fmt"

	"go.uber.org/zap"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

// DefaultMinimumLiquidity is the smallest share supply a first deposit may
// mint.
const DefaultMinimumLiquidity uint64 = 1000

// Policy selects which deposit shapes are accepted.
type Policy string

const (
	PolicyProportional Policy = "proportional"
	PolicySingleSided  Policy = "single-sided"
)

// ParsePolicy maps a config value to a Policy. Empty means proportional.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyProportional:
		return PolicyProportional, nil
	case PolicySingleSided:
		return PolicySingleSided, nil
	default:
		return "", fmt.Errorf("unknown deposit policy %q", s)
	}
}

type Config struct {
	// MinimumLiquidity is the share floor for seeding deposits. Zero disables it.
	MinimumLiquidity model.Amount
	Policy           Policy
}

func DefaultConfig() Config {
	return Config{
		MinimumLiquidity: fixedpoint.FromUint64(DefaultMinimumLiquidity),
		Policy:           PolicyProportional,
	}
}

type Engine struct {
	cfg    Config
	logger *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyProportional
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Policy returns the configured deposit policy.
func (e *Engine) Policy() Policy {
	return e.cfg.Policy
}

// AddLiquidity prices a two-sided deposit. On a non-empty pool the deposit is
// adjusted to (amountA, requiredB); any excess B stays with the holder.
func (e *Engine) AddLiquidity(state model.PoolState, holder model.Holder, amountA, amountB, minShares model.Amount) (model.Instruction, error) {
	if err := checkHolder(state, holder); err != nil {
		return model.Instruction{}, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return model.Instruction{}, fmt.Errorf("%w: deposit amounts must be positive", model.ErrInvalidAmount)
	}

	var (
		depositB model.Amount
		shares   model.Amount
		err      error
	)
	if state.IsEmpty() {
		depositB = amountB
		shares, err = e.seedShares(amountA, amountB)
	} else {
		depositB, shares, err = proportionalShares(state, amountA, amountB)
	}
	if err != nil {
		return model.Instruction{}, err
	}
	if shares.Lt(&minShares) {
		return model.Instruction{}, fmt.Errorf("%w: %s shares below minimum %s", model.ErrSlippageExceeded, shares.Dec(), minShares.Dec())
	}

	next := state
	if next.ReserveA, err = boundedAdd(state.ReserveA, amountA); err != nil {
		return model.Instruction{}, err
	}
	if next.ReserveB, err = boundedAdd(state.ReserveB, depositB); err != nil {
		return model.Instruction{}, err
	}
	if next.TotalShares, err = boundedAdd(state.TotalShares, shares); err != nil {
		return model.Instruction{}, err
	}
	next.Version = state.Version + 1

	pool := state.Account()
	legs := []model.Leg{
		{Token: state.Pair.A, From: holder, To: pool, Amount: amountA},
		{Token: state.Pair.B, From: holder, To: pool, Amount: depositB},
		{Token: state.ShareToken(), To: holder, Amount: shares},
	}
	req := model.Request{
		Kind:      model.OpAddLiquidity,
		Pair:      state.Pair,
		Holder:    holder,
		AmountA:   amountA,
		AmountB:   amountB,
		MinShares: minShares,
	}
	outcome := model.Outcome{AmountA: amountA, AmountB: depositB, SharesMinted: shares}

	e.logger.Debug("quoted deposit",
		zap.String("pool", state.Pair.Key()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", depositB.Dec()),
		zap.String("shares", shares.Dec()),
		zap.Bool("seed", state.IsEmpty()),
	)
	return model.NewInstruction(req, state, next, legs, outcome), nil
}

func (e *Engine) seedShares(amountA, amountB model.Amount) (model.Amount, error) {
	if err := fixedpoint.CheckBound(amountA); err != nil {
		return model.Amount{}, err
	}
	if err := fixedpoint.CheckBound(amountB); err != nil {
		return model.Amount{}, err
	}
	k, err := fixedpoint.Mul(amountA, amountB)
	if err != nil {
		return model.Amount{}, err
	}
	shares := fixedpoint.Sqrt(k)
	if shares.Lt(&e.cfg.MinimumLiquidity) {
		return model.Amount{}, fmt.Errorf("%w: seeding mints %s shares, floor is %s",
			model.ErrInsufficientInitialLiquidity, shares.Dec(), e.cfg.MinimumLiquidity.Dec())
	}
	return shares, nil
}

func proportionalShares(state model.PoolState, amountA, amountB model.Amount) (model.Amount, model.Amount, error) {
	requiredB, err := fixedpoint.MulDiv(amountA, state.ReserveB, state.ReserveA, fixedpoint.RoundUp)
	if err != nil {
		return model.Amount{}, model.Amount{}, err
	}
	if requiredB.Gt(&amountB) {
		return model.Amount{}, model.Amount{}, fmt.Errorf("%w: %s %s requires %s %s, got %s",
			model.ErrProportionMismatch, amountA.Dec(), state.Pair.A, requiredB.Dec(), state.Pair.B, amountB.Dec())
	}

	sharesA, err := fixedpoint.MulDiv(amountA, state.TotalShares, state.ReserveA, fixedpoint.RoundDown)
	if err != nil {
		return model.Amount{}, model.Amount{}, err
	}
	sharesB, err := fixedpoint.MulDiv(requiredB, state.TotalShares, state.ReserveB, fixedpoint.RoundDown)
	if err != nil {
		return model.Amount{}, model.Amount{}, err
	}
	shares := fixedpoint.Min(sharesA, sharesB)
	if shares.IsZero() {
		return model.Amount{}, model.Amount{}, fmt.Errorf("%w: deposit of %s %s mints no shares", model.ErrInvalidAmount, amountA.Dec(), state.Pair.A)
	}
	return requiredB, shares, nil
}

// AddSingleSided prices a deposit of one token. Half of the deposit counts as
// implicitly swapped and pays the pool fee.
func (e *Engine) AddSingleSided(state model.PoolState, holder model.Holder, tokenIn model.TokenID, amountIn, minShares model.Amount) (model.Instruction, error) {
	if e.cfg.Policy != PolicySingleSided {
		return model.Instruction{}, fmt.Errorf("%w: single-sided deposits are disabled", model.ErrProportionMismatch)
	}
	if !state.Pair.Contains(tokenIn) {
		return model.Instruction{}, fmt.Errorf("%w: %s is not in pool %s", model.ErrInvalidToken, tokenIn, state.Pair)
	}
	if amountIn.IsZero() {
		return model.Instruction{}, fmt.Errorf("%w: deposit amount must be positive", model.ErrInvalidAmount)
	}
	if state.IsEmpty() {
		return model.Instruction{}, fmt.Errorf("%w: %s", model.ErrPoolEmpty, state.Pair)
	}
	if err := checkHolder(state, holder); err != nil {
		return model.Instruction{}, err
	}

	reserve := state.Reserve(tokenIn)
	newReserve, err := boundedAdd(reserve, amountIn)
	if err != nil {
		return model.Instruction{}, err
	}

	var half model.Amount
	half.Rsh(&amountIn, 1)
	fee, err := fixedpoint.FeeAmount(half, state.Fee)
	if err != nil {
		return model.Instruction{}, err
	}
	effective, err := fixedpoint.Sub(amountIn, fee)
	if err != nil {
		return model.Instruction{}, err
	}
	grown, err := fixedpoint.Add(reserve, effective)
	if err != nil {
		return model.Instruction{}, err
	}

	// shares = floor(sqrt(T^2 * (r + a_eff) / r)) - T
	t2, err := fixedpoint.Mul(state.TotalShares, state.TotalShares)
	if err != nil {
		return model.Instruction{}, err
	}
	scaled, err := fixedpoint.MulDiv(t2, grown, reserve, fixedpoint.RoundDown)
	if err != nil {
		return model.Instruction{}, err
	}
	root := fixedpoint.Sqrt(scaled)
	shares, err := fixedpoint.Sub(root, state.TotalShares)
	if err != nil || shares.IsZero() {
		return model.Instruction{}, fmt.Errorf("%w: deposit of %s %s mints no shares", model.ErrInvalidAmount, amountIn.Dec(), tokenIn)
	}
	if shares.Lt(&minShares) {
		return model.Instruction{}, fmt.Errorf("%w: %s shares below minimum %s", model.ErrSlippageExceeded, shares.Dec(), minShares.Dec())
	}

	next := state.WithReserves(tokenIn, newReserve, state.Reserve(state.Pair.Other(tokenIn)))
	if next.TotalShares, err = boundedAdd(state.TotalShares, shares); err != nil {
		return model.Instruction{}, err
	}
	next.Version = state.Version + 1

	legs := []model.Leg{
		{Token: tokenIn, From: holder, To: state.Account(), Amount: amountIn},
		{Token: state.ShareToken(), To: holder, Amount: shares},
	}
	req := model.Request{
		Kind:      model.OpAddSingleSided,
		Pair:      state.Pair,
		Holder:    holder,
		TokenIn:   tokenIn,
		AmountIn:  amountIn,
		MinShares: minShares,
	}
	outcome := model.Outcome{AmountIn: amountIn, Fee: fee, SharesMinted: shares}
	if tokenIn == state.Pair.A {
		outcome.AmountA = amountIn
	} else {
		outcome.AmountB = amountIn
	}

	e.logger.Debug("quoted single-sided deposit",
		zap.String("pool", state.Pair.Key()),
		zap.String("token_in", string(tokenIn)),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("shares", shares.Dec()),
	)
	return model.NewInstruction(req, state, next, legs, outcome), nil
}

// RemoveLiquidity prices burning shares for a pro-rata part of both
// reserves. Burning every share empties the pool.
func (e *Engine) RemoveLiquidity(state model.PoolState, holder model.Holder, shares, minAmountA, minAmountB model.Amount) (model.Instruction, error) {
	if err := checkHolder(state, holder); err != nil {
		return model.Instruction{}, err
	}
	if shares.IsZero() || shares.Gt(&state.TotalShares) {
		return model.Instruction{}, fmt.Errorf("%w: %s of %s outstanding", model.ErrInvalidShareAmount, shares.Dec(), state.TotalShares.Dec())
	}

	amountA, err := fixedpoint.MulDiv(shares, state.ReserveA, state.TotalShares, fixedpoint.RoundDown)
	if err != nil {
		return model.Instruction{}, err
	}
	amountB, err := fixedpoint.MulDiv(shares, state.ReserveB, state.TotalShares, fixedpoint.RoundDown)
	if err != nil {
		return model.Instruction{}, err
	}
	if amountA.IsZero() && amountB.IsZero() {
		return model.Instruction{}, fmt.Errorf("%w: %s shares redeem nothing", model.ErrInvalidShareAmount, shares.Dec())
	}
	if amountA.Lt(&minAmountA) || amountB.Lt(&minAmountB) {
		return model.Instruction{}, fmt.Errorf("%w: withdrawal (%s, %s) below minimum (%s, %s)",
			model.ErrSlippageExceeded, amountA.Dec(), amountB.Dec(), minAmountA.Dec(), minAmountB.Dec())
	}

	next := state
	if next.ReserveA, err = fixedpoint.Sub(state.ReserveA, amountA); err != nil {
		return model.Instruction{}, err
	}
	if next.ReserveB, err = fixedpoint.Sub(state.ReserveB, amountB); err != nil {
		return model.Instruction{}, err
	}
	if next.TotalShares, err = fixedpoint.Sub(state.TotalShares, shares); err != nil {
		return model.Instruction{}, err
	}
	next.Version = state.Version + 1

	pool := state.Account()
	legs := []model.Leg{{Token: state.ShareToken(), From: holder, Amount: shares}}
	if !amountA.IsZero() {
		legs = append(legs, model.Leg{Token: state.Pair.A, From: pool, To: holder, Amount: amountA})
	}
	if !amountB.IsZero() {
		legs = append(legs, model.Leg{Token: state.Pair.B, From: pool, To: holder, Amount: amountB})
	}
	req := model.Request{
		Kind:       model.OpRemoveLiquidity,
		Pair:       state.Pair,
		Holder:     holder,
		Shares:     shares,
		MinAmountA: minAmountA,
		MinAmountB: minAmountB,
	}
	outcome := model.Outcome{AmountA: amountA, AmountB: amountB, SharesBurned: shares}

	e.logger.Debug("quoted withdrawal",
		zap.String("pool", state.Pair.Key()),
		zap.String("shares", shares.Dec()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
		zap.Bool("empties", next.IsEmpty()),
	)
	return model.NewInstruction(req, state, next, legs, outcome), nil
}

func checkHolder(state model.PoolState, holder model.Holder) error {
	if holder == "" || model.IsPoolAccount(holder) {
		return fmt.Errorf("%w: invalid holder %q", model.ErrInvalidInstruction, holder)
	}
	return nil
}

func boundedAdd(a, b model.Amount) (model.Amount, error) {
	sum, err := fixedpoint.Add(a, b)
	if err != nil {
		return model.Amount{}, err
	}
	if err := fixedpoint.CheckBound(sum); err != nil {
		return model.Amount{}, err
	}
	return sum, nil
}
