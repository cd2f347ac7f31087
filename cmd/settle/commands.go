package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/service"
)

type runFunc func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error

// withStack builds the stack for the duration of one command.
func withStack(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := loadStack(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return run(ctx, s, cmd, args)
	}
}

func parsePair(x, y string) (model.Pair, error) {
	return model.NewPair(model.NormalizeTokenID(x), model.NormalizeTokenID(y))
}

// amountFlag parses a display amount flag for token. An empty flag is zero.
func amountFlag(ctx context.Context, s *stack, cmd *cobra.Command, name string, token model.TokenID) (model.Amount, error) {
	text, _ := cmd.Flags().GetString(name)
	if text == "" {
		return fixedpoint.Zero(), nil
	}
	v, err := s.svc.ParseAmount(ctx, token, text)
	if err != nil {
		return model.Amount{}, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func holderFlag(cmd *cobra.Command) (model.Holder, error) {
	holder, _ := cmd.Flags().GetString("holder")
	if holder == "" {
		return "", fmt.Errorf("--holder is required")
	}
	return model.Holder(holder), nil
}

func newPoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool <tokenX> <tokenY>",
		Short: "Show one pool",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			state, err := s.svc.PoolState(ctx, pair)
			if err != nil {
				return err
			}
			printPool(ctx, cmd.OutOrStdout(), s.svc, state)
			if s.pg != nil {
				seq, ok, err := s.pg.LatestSequence(ctx, pair.Key())
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "postgres mirror sequence=%d\n", seq)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "postgres mirror has no receipts")
				}
			}
			return nil
		}),
	}
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List seeded pools",
		Args:  cobra.NoArgs,
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, _ []string) error {
			pools, err := s.svc.Pools(ctx)
			if err != nil {
				return err
			}
			for _, state := range pools {
				printPool(ctx, cmd.OutOrStdout(), s.svc, state)
			}
			return nil
		}),
	}
}

func newFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <token> <holder> <amount>",
		Short: "Mint test balance to a holder",
		Args:  cobra.ExactArgs(3),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			token := model.NormalizeTokenID(args[0])
			holder := model.Holder(args[1])
			amount, err := s.svc.ParseAmount(ctx, token, args[2])
			if err != nil {
				return err
			}
			if err := s.ledger.Transfer(ctx, token, "", holder, amount); err != nil {
				return err
			}
			return printBalance(ctx, cmd.OutOrStdout(), s, token, holder)
		}),
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <token> <holder>",
		Short: "Show a holder's balance",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			return printBalance(ctx, cmd.OutOrStdout(), s, model.NormalizeTokenID(args[0]), model.Holder(args[1]))
		}),
	}
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit <tokenX> <tokenY>",
		Short: "Add liquidity, creating the pool on first deposit",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			holder, err := holderFlag(cmd)
			if err != nil {
				return err
			}
			x, y := model.NormalizeTokenID(args[0]), model.NormalizeTokenID(args[1])
			minShares, err := amountFlag(ctx, s, cmd, "min-shares", "")
			if err != nil {
				return err
			}

			var quote func(context.Context) (model.Instruction, error)
			if tokenText, _ := cmd.Flags().GetString("single"); tokenText != "" {
				pair, err := model.NewPair(x, y)
				if err != nil {
					return err
				}
				tokenIn := model.NormalizeTokenID(tokenText)
				amountIn, err := amountFlag(ctx, s, cmd, "amount-in", tokenIn)
				if err != nil {
					return err
				}
				quote = func(ctx context.Context) (model.Instruction, error) {
					return s.svc.AddSingleSided(ctx, pair, holder, tokenIn, amountIn, minShares)
				}
			} else {
				fee, _ := cmd.Flags().GetUint32("fee")
				amountX, err := amountFlag(ctx, s, cmd, "amount-x", x)
				if err != nil {
					return err
				}
				amountY, err := amountFlag(ctx, s, cmd, "amount-y", y)
				if err != nil {
					return err
				}
				quote = func(ctx context.Context) (model.Instruction, error) {
					return s.svc.AddLiquidity(ctx, x, y, fixedpoint.FeeRate(fee), holder, amountX, amountY, minShares)
				}
			}

			receipt, err := s.svc.Execute(ctx, quote, s.retry())
			if err != nil {
				return err
			}
			printReceipt(ctx, cmd.OutOrStdout(), s.svc, receipt)
			return nil
		}),
	}
	cmd.Flags().String("holder", "", "depositing account")
	cmd.Flags().Uint32("fee", 3000, "pool fee in millionths, used when the pool is created")
	cmd.Flags().String("amount-x", "", "amount of tokenX")
	cmd.Flags().String("amount-y", "", "amount of tokenY")
	cmd.Flags().String("single", "", "deposit only this token (single-sided policy)")
	cmd.Flags().String("amount-in", "", "single-sided deposit amount")
	cmd.Flags().String("min-shares", "", "minimum shares to mint, in base units")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <tokenX> <tokenY>",
		Short: "Burn shares for a proportional share of the reserves",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			holder, err := holderFlag(cmd)
			if err != nil {
				return err
			}
			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			shares, err := amountFlag(ctx, s, cmd, "shares", "")
			if err != nil {
				return err
			}
			minA, err := amountFlag(ctx, s, cmd, "min-a", pair.A)
			if err != nil {
				return err
			}
			minB, err := amountFlag(ctx, s, cmd, "min-b", pair.B)
			if err != nil {
				return err
			}

			receipt, err := s.svc.Execute(ctx, func(ctx context.Context) (model.Instruction, error) {
				return s.svc.RemoveLiquidity(ctx, pair, holder, shares, minA, minB)
			}, s.retry())
			if err != nil {
				return err
			}
			printReceipt(ctx, cmd.OutOrStdout(), s.svc, receipt)
			return nil
		}),
	}
	cmd.Flags().String("holder", "", "withdrawing account")
	cmd.Flags().String("shares", "", "shares to burn, in base units")
	cmd.Flags().String("min-a", "", "minimum amount of the pair's first token")
	cmd.Flags().String("min-b", "", "minimum amount of the pair's second token")
	return cmd
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap <tokenX> <tokenY>",
		Short: "Swap against a pool, exact input or exact output",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			holder, err := holderFlag(cmd)
			if err != nil {
				return err
			}
			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			tokenText, _ := cmd.Flags().GetString("token-in")
			tokenIn := model.NormalizeTokenID(tokenText)
			if tokenIn == "" {
				return fmt.Errorf("--token-in is required")
			}
			tokenOut := pair.Other(tokenIn)

			quote, err := swapQuote(ctx, s, cmd, pair, holder, tokenIn, tokenOut)
			if err != nil {
				return err
			}
			receipt, err := s.svc.Execute(ctx, quote, s.retry())
			if err != nil {
				return err
			}
			printReceipt(ctx, cmd.OutOrStdout(), s.svc, receipt)
			return nil
		}),
	}
	cmd.Flags().String("holder", "", "swapping account")
	cmd.Flags().String("token-in", "", "token paid into the pool")
	cmd.Flags().String("amount-in", "", "exact amount to pay")
	cmd.Flags().String("min-out", "", "minimum amount to receive")
	cmd.Flags().String("amount-out", "", "exact amount to receive")
	cmd.Flags().String("max-in", "", "maximum amount to pay")
	return cmd
}

func swapQuote(ctx context.Context, s *stack, cmd *cobra.Command, pair model.Pair, holder model.Holder, tokenIn, tokenOut model.TokenID) (func(context.Context) (model.Instruction, error), error) {
	amountIn, err := amountFlag(ctx, s, cmd, "amount-in", tokenIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := amountFlag(ctx, s, cmd, "amount-out", tokenOut)
	if err != nil {
		return nil, err
	}
	switch {
	case !amountIn.IsZero() && !amountOut.IsZero():
		return nil, fmt.Errorf("--amount-in and --amount-out are exclusive")
	case !amountIn.IsZero():
		minOut, err := amountFlag(ctx, s, cmd, "min-out", tokenOut)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (model.Instruction, error) {
			return s.svc.QuoteExactInput(ctx, pair, holder, tokenIn, amountIn, minOut)
		}, nil
	case !amountOut.IsZero():
		maxIn, err := amountFlag(ctx, s, cmd, "max-in", tokenIn)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (model.Instruction, error) {
			return s.svc.QuoteExactOutput(ctx, pair, holder, tokenIn, amountOut, maxIn)
		}, nil
	default:
		return nil, fmt.Errorf("one of --amount-in or --amount-out is required")
	}
}

func printPool(ctx context.Context, w io.Writer, svc *service.Service, state model.PoolState) {
	fmt.Fprintf(w, "%s fee=%s version=%d %s=%s %s=%s shares=%s\n",
		state.Pair.Key(), state.Fee, state.Version,
		state.Pair.A, svc.FormatAmount(ctx, state.Pair.A, state.ReserveA),
		state.Pair.B, svc.FormatAmount(ctx, state.Pair.B, state.ReserveB),
		state.TotalShares.Dec(),
	)
}

func printBalance(ctx context.Context, w io.Writer, s *stack, token model.TokenID, holder model.Holder) error {
	bal, err := s.ledger.BalanceOf(ctx, token, holder)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s %s\n", holder, token, s.svc.FormatAmount(ctx, token, bal))
	return nil
}

func printReceipt(ctx context.Context, w io.Writer, svc *service.Service, r model.Receipt) {
	fmt.Fprintf(w, "applied %s %s seq=%d instruction=%s requoted=%t\n",
		r.Kind, r.After.Pair.Key(), r.Sequence(), r.InstructionID, r.Requoted)
	for _, leg := range r.Legs {
		from, to := string(leg.From), string(leg.To)
		if leg.IsMint() {
			from = "(mint)"
		}
		if leg.IsBurn() {
			to = "(burn)"
		}
		fmt.Fprintf(w, "  %s %s -> %s %s\n", leg.Token, from, to, svc.FormatAmount(ctx, leg.Token, leg.Amount))
	}
	printPool(ctx, w, svc, r.After)
}
