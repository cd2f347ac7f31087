// Package service is the public surface of the settlement engine: it quotes
// against the current pool state and hands instructions to the coordinator.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/settlement"
	"ammSettle/internal/tokens"
)

// Registry is the pool lookup the service needs. *pool.Registry implements it.
type Registry interface {
	GetOrCreate(ctx context.Context, x, y model.TokenID, fee fixedpoint.FeeRate, create bool) (model.PoolState, error)
	Snapshot(ctx context.Context, pair model.Pair) (model.PoolState, error)
	List(ctx context.Context) ([]model.PoolState, error)
}

// Applier settles instructions. *settlement.Coordinator implements it.
type Applier interface {
	Apply(ctx context.Context, in model.Instruction) (model.Receipt, error)
}

type Service struct {
	pools   Registry
	engines settlement.Engines
	applier Applier
	tokens  tokens.Directory
	logger  *zap.Logger
}

func New(pools Registry, engines settlement.Engines, applier Applier, dir tokens.Directory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pools: pools, engines: engines, applier: applier, tokens: dir, logger: logger}
}

// Quote re-runs the engine for req against state.
func (s *Service) Quote(state model.PoolState, req model.Request) (model.Instruction, error) {
	return s.engines.Quote(state, req)
}

func (s *Service) QuoteExactInput(ctx context.Context, pair model.Pair, holder model.Holder, tokenIn model.TokenID, amountIn, minAmountOut model.Amount) (model.Instruction, error) {
	state, err := s.pools.Snapshot(ctx, pair)
	if err != nil {
		return model.Instruction{}, err
	}
	return s.engines.Swap.QuoteExactInput(state, holder, tokenIn, amountIn, minAmountOut)
}

func (s *Service) QuoteExactOutput(ctx context.Context, pair model.Pair, holder model.Holder, tokenIn model.TokenID, amountOut, maxAmountIn model.Amount) (model.Instruction, error) {
	state, err := s.pools.Snapshot(ctx, pair)
	if err != nil {
		return model.Instruction{}, err
	}
	return s.engines.Swap.QuoteExactOutput(state, holder, tokenIn, amountOut, maxAmountIn)
}

// AddLiquidity quotes a proportional deposit of amountX of x and amountY of
// y, creating the pool with the given fee when it does not exist yet.
func (s *Service) AddLiquidity(ctx context.Context, x, y model.TokenID, fee fixedpoint.FeeRate, holder model.Holder, amountX, amountY, minShares model.Amount) (model.Instruction, error) {
	state, err := s.pools.GetOrCreate(ctx, x, y, fee, true)
	if err != nil {
		return model.Instruction{}, err
	}
	amountA, amountB := amountX, amountY
	if x != state.Pair.A {
		amountA, amountB = amountY, amountX
	}
	if state.IsEmpty() {
		s.logger.Info("seeding pool",
			zap.String("pool", state.Pair.Key()),
			zap.String("fee", state.Fee.String()),
			zap.String("holder", string(holder)),
		)
	}
	return s.engines.Liquidity.AddLiquidity(state, holder, amountA, amountB, minShares)
}

func (s *Service) AddSingleSided(ctx context.Context, pair model.Pair, holder model.Holder, tokenIn model.TokenID, amountIn, minShares model.Amount) (model.Instruction, error) {
	state, err := s.pools.Snapshot(ctx, pair)
	if err != nil {
		return model.Instruction{}, err
	}
	return s.engines.Liquidity.AddSingleSided(state, holder, tokenIn, amountIn, minShares)
}

func (s *Service) RemoveLiquidity(ctx context.Context, pair model.Pair, holder model.Holder, shares, minAmountA, minAmountB model.Amount) (model.Instruction, error) {
	state, err := s.pools.Snapshot(ctx, pair)
	if err != nil {
		return model.Instruction{}, err
	}
	return s.engines.Liquidity.RemoveLiquidity(state, holder, shares, minAmountA, minAmountB)
}

func (s *Service) Apply(ctx context.Context, in model.Instruction) (model.Receipt, error) {
	return s.applier.Apply(ctx, in)
}

// Execute quotes and applies, re-quoting after a stale quote as the policy
// allows. Every other error is returned as is.
func (s *Service) Execute(ctx context.Context, quote func(context.Context) (model.Instruction, error), policy RetryPolicy) (model.Receipt, error) {
	var receipt model.Receipt
	attempt := 0
	err := withRetry(ctx, policy, retryStale, func(ctx context.Context) error {
		attempt++
		in, err := quote(ctx)
		if err != nil {
			return err
		}
		receipt, err = s.applier.Apply(ctx, in)
		if err != nil && retryStale(err) {
			s.logger.Debug("stale quote, retrying",
				zap.String("pool", in.Snapshot.Pair.Key()),
				zap.Int("attempt", attempt),
			)
		}
		return err
	})
	if err != nil {
		return model.Receipt{}, err
	}
	return receipt, nil
}

// PoolState returns the committed state of a pool, or the pending empty
// state of a pool that was created but not seeded.
func (s *Service) PoolState(ctx context.Context, pair model.Pair) (model.PoolState, error) {
	return s.pools.Snapshot(ctx, pair)
}

// Pools lists every seeded pool.
func (s *Service) Pools(ctx context.Context) ([]model.PoolState, error) {
	return s.pools.List(ctx)
}

// FormatAmount renders an amount with the token's decimals. Tokens the
// directory does not know are printed in base units.
func (s *Service) FormatAmount(ctx context.Context, token model.TokenID, amount model.Amount) string {
	if s.tokens == nil {
		return amount.Dec()
	}
	decimals, err := s.tokens.DecimalsOf(ctx, token)
	if err != nil {
		return amount.Dec()
	}
	return tokens.Format(amount, decimals)
}

// ParseAmount converts display text for token into base units. Unknown
// tokens take the text as base units.
func (s *Service) ParseAmount(ctx context.Context, token model.TokenID, text string) (model.Amount, error) {
	var decimals uint8
	if s.tokens != nil {
		if d, err := s.tokens.DecimalsOf(ctx, token); err == nil {
			decimals = d
		}
	}
	amount, err := tokens.ParseUnits(text, decimals)
	if err != nil {
		return model.Amount{}, fmt.Errorf("%s amount: %w", token, err)
	}
	return amount, nil
}
