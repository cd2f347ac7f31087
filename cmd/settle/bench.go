package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench <tokenX> <tokenY>",
		Short: "Run concurrent swaps against one pool",
		Args:  cobra.ExactArgs(2),
		RunE:  withStack(runBench),
	}
	cmd.Flags().Int("workers", 8, "concurrent swappers")
	cmd.Flags().Int("swaps", 100, "swaps per worker")
	cmd.Flags().Uint64("amount", 1000, "amount in per swap, in base units")
	return cmd
}

func runBench(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
	pair, err := parsePair(args[0], args[1])
	if err != nil {
		return err
	}
	if _, err := s.svc.PoolState(ctx, pair); err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	swaps, _ := cmd.Flags().GetInt("swaps")
	amountRaw, _ := cmd.Flags().GetUint64("amount")
	if workers <= 0 || swaps <= 0 || amountRaw == 0 {
		return fmt.Errorf("workers, swaps and amount must be positive")
	}
	amount := fixedpoint.FromUint64(amountRaw)

	// Each worker gets enough of both tokens for every swap.
	budget, err := fixedpoint.Mul(amount, fixedpoint.FromUint64(uint64(swaps)))
	if err != nil {
		return err
	}
	for i := 0; i < workers; i++ {
		holder := benchHolder(i)
		for _, token := range []model.TokenID{pair.A, pair.B} {
			if err := s.ledger.Transfer(ctx, token, "", holder, budget); err != nil {
				return fmt.Errorf("fund %s: %w", holder, err)
			}
		}
	}

	var applied, stale, failed atomic.Int64
	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		holder := benchHolder(i)
		g.Go(func() error {
			for n := 0; n < swaps; n++ {
				tokenIn := pair.A
				if (n+i)%2 == 1 {
					tokenIn = pair.B
				}
				_, err := s.svc.Execute(gctx, func(ctx context.Context) (model.Instruction, error) {
					return s.svc.QuoteExactInput(ctx, pair, holder, tokenIn, amount, fixedpoint.Zero())
				}, s.retry())
				switch {
				case err == nil:
					applied.Add(1)
				case errors.Is(err, model.ErrStaleQuote):
					stale.Add(1)
				case model.IsFatal(err), errors.Is(err, context.Canceled):
					return err
				default:
					failed.Add(1)
					s.logger.Debug("bench swap rejected", zap.String("holder", string(holder)), zap.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(started)

	state, err := s.svc.PoolState(ctx, pair)
	if err != nil {
		return err
	}
	total := applied.Load() + stale.Load() + failed.Load()
	fmt.Fprintf(cmd.OutOrStdout(), "swaps=%d applied=%d stale=%d rejected=%d elapsed=%s rate=%.0f/s\n",
		total, applied.Load(), stale.Load(), failed.Load(), elapsed.Round(time.Millisecond),
		float64(applied.Load())/elapsed.Seconds())
	printPool(ctx, cmd.OutOrStdout(), s.svc, state)
	return printMetrics(cmd.OutOrStdout(), s.metrics)
}

func benchHolder(i int) model.Holder {
	return model.Holder(fmt.Sprintf("bench-%d", i))
}
