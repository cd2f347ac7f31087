package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"ammSettle/internal/model"
)

func newHoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holders <token>",
		Short: "List every non-zero balance of a token (kv ledger)",
		Args:  cobra.ExactArgs(1),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			lister, ok := s.ledger.(interface {
				Holders(ctx context.Context, token model.TokenID) (map[model.Holder]model.Amount, error)
			})
			if !ok {
				return fmt.Errorf("holders needs the kv ledger, have %q", s.cfg.Ledger)
			}
			token := model.NormalizeTokenID(args[0])
			holders, err := lister.Holders(ctx, token)
			if err != nil {
				return err
			}
			names := make([]model.Holder, 0, len(holders))
			for h := range holders {
				names = append(names, h)
			}
			sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
			for _, h := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", h, s.svc.FormatAmount(ctx, token, holders[h]))
			}
			return nil
		}),
	}
}

func newReceiptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts <tokenX> <tokenY>",
		Short: "Show recent receipts of a pool from the redis journal",
		Args:  cobra.ExactArgs(2),
		RunE: withStack(func(ctx context.Context, s *stack, cmd *cobra.Command, args []string) error {
			if s.publisher == nil {
				return fmt.Errorf("receipts needs the redis journal (--journal redis)")
			}
			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt64("limit")
			follow, _ := cmd.Flags().GetBool("follow")

			history, err := s.publisher.History(ctx, pair, limit)
			if err != nil {
				return err
			}
			// History is newest first; print oldest first.
			for i := len(history) - 1; i >= 0; i-- {
				printRecord(cmd.OutOrStdout(), history[i])
			}
			if !follow {
				return nil
			}

			err = s.publisher.Subscribe(ctx, func(rec model.ReceiptRecord) {
				if rec.Pool == pair.Key() {
					printRecord(cmd.OutOrStdout(), rec)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().Int64("limit", 20, "receipts to show")
	cmd.Flags().Bool("follow", false, "keep printing new receipts until interrupted")
	return cmd
}

func printRecord(w io.Writer, rec model.ReceiptRecord) {
	fmt.Fprintf(w, "%s seq=%d %s holder=%s instruction=%s", rec.AppliedAt, rec.Sequence, rec.Kind, rec.Holder, rec.InstructionID)
	for _, f := range []struct{ name, value string }{
		{"in", rec.AmountIn}, {"out", rec.AmountOut}, {"fee", rec.Fee},
		{"minted", rec.SharesMinted}, {"burned", rec.SharesBurned},
	} {
		if f.value != "" {
			fmt.Fprintf(w, " %s=%s", f.name, f.value)
		}
	}
	fmt.Fprintln(w)
}
