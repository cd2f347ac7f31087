package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

type balanceKey struct {
	token  model.TokenID
	holder model.Holder
}

// BalanceOf returns the balance of holder in token; unknown rows are zero.
func (s *Store) BalanceOf(ctx context.Context, token model.TokenID, holder model.Holder) (model.Amount, error) {
	var text string
	row := s.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE token=$1 AND holder=$2`, string(token), string(holder))
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fixedpoint.Zero(), nil
		}
		return fixedpoint.Zero(), err
	}
	return fixedpoint.Parse(text)
}

// Transfer moves amount between two holders in one transaction.
func (s *Store) Transfer(ctx context.Context, token model.TokenID, from, to model.Holder, amount model.Amount) error {
	return s.TransferBatch(ctx, []model.Leg{{Token: token, From: from, To: to, Amount: amount}})
}

// TransferBatch applies every leg in one transaction. Every touched row is
// locked in a fixed order so concurrent batches cannot deadlock.
func (s *Store) TransferBatch(ctx context.Context, legs []model.Leg) error {
	if len(legs) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE locks only existing rows, so every touched row is created first.
	keys := touchedKeys(legs)
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (token, holder, amount, updated_at)
			VALUES ($1, $2, 0, now())
			ON CONFLICT (token, holder) DO NOTHING
		`, string(key.token), string(key.holder)); err != nil {
			return fmt.Errorf("create balance %s/%s: %w", key.token, key.holder, err)
		}
	}

	balances := make(map[balanceKey]model.Amount, len(keys))
	for _, key := range keys {
		var text string
		row := tx.QueryRow(ctx, `SELECT amount::text FROM balances WHERE token=$1 AND holder=$2 FOR UPDATE`, string(key.token), string(key.holder))
		if err := row.Scan(&text); err != nil {
			return fmt.Errorf("lock balance %s/%s: %w", key.token, key.holder, err)
		}
		amount, err := fixedpoint.Parse(text)
		if err != nil {
			return err
		}
		balances[key] = amount
	}

	for _, leg := range legs {
		if !leg.IsMint() {
			key := balanceKey{leg.Token, leg.From}
			next, err := fixedpoint.Sub(balances[key], leg.Amount)
			if err != nil {
				bal := balances[key]
				return fmt.Errorf("%w: %s holds %s %s, needs %s", model.ErrInsufficientBalance, leg.From, bal.Dec(), leg.Token, leg.Amount.Dec())
			}
			balances[key] = next
		}
		if !leg.IsBurn() {
			key := balanceKey{leg.Token, leg.To}
			next, err := fixedpoint.Add(balances[key], leg.Amount)
			if err != nil {
				return err
			}
			balances[key] = next
		}
	}

	for _, key := range keys {
		amount := balances[key]
		if _, err := tx.Exec(ctx, `
			UPDATE balances SET amount = $3::numeric, updated_at = now()
			WHERE token = $1 AND holder = $2
		`, string(key.token), string(key.holder), amount.Dec()); err != nil {
			return fmt.Errorf("write balance %s/%s: %w", key.token, key.holder, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func touchedKeys(legs []model.Leg) []balanceKey {
	seen := make(map[balanceKey]struct{})
	var keys []balanceKey
	add := func(token model.TokenID, holder model.Holder) {
		if holder == "" {
			return
		}
		key := balanceKey{token, holder}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, leg := range legs {
		add(leg.Token, leg.From)
		add(leg.Token, leg.To)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].token != keys[j].token {
			return keys[i].token < keys[j].token
		}
		return keys[i].holder < keys[j].holder
	})
	return keys
}
