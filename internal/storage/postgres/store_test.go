package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	dsn := os.Getenv("SETTLE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SETTLE_TEST_PG_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestTouchedKeysSortedAndDistinct(t *testing.T) {
	legs := []model.Leg{
		{Token: "b", From: "bob", To: "pool"},
		{Token: "a", From: "pool", To: "bob"},
		{Token: "lp", From: "", To: "bob"},
		{Token: "a", From: "bob", To: "pool"},
	}
	keys := touchedKeys(legs)
	want := []balanceKey{
		{"a", "bob"}, {"a", "pool"}, {"b", "bob"}, {"b", "pool"}, {"lp", "bob"},
	}
	require.Equal(t, want, keys)
}

func TestLedgerTransferBatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	token := model.TokenID("test:" + uuid.NewString())
	alice := model.Holder("alice-" + uuid.NewString())
	bob := model.Holder("bob-" + uuid.NewString())

	require.NoError(t, store.TransferBatch(ctx, []model.Leg{
		{Token: token, To: alice, Amount: fixedpoint.FromUint64(100)},
	}))

	require.NoError(t, store.Transfer(ctx, token, alice, bob, fixedpoint.FromUint64(40)))

	err := store.TransferBatch(ctx, []model.Leg{
		{Token: token, From: alice, To: bob, Amount: fixedpoint.FromUint64(10)},
		{Token: token, From: bob, To: alice, Amount: fixedpoint.FromUint64(1000)},
	})
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	balA, err := store.BalanceOf(ctx, token, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), balA.Uint64(), "failed batch must not move any leg")

	balB, err := store.BalanceOf(ctx, token, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), balB.Uint64())
}

func TestLedgerConcurrentCreditsToNewHolder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	token := model.TokenID("test:" + uuid.NewString())
	payee := model.Holder("payee-" + uuid.NewString())
	const payers = 8
	for i := 0; i < payers; i++ {
		require.NoError(t, store.Transfer(ctx, token, "", model.Holder(fmt.Sprintf("payer-%d-%s", i, payee)), fixedpoint.FromUint64(10)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < payers; i++ {
		payer := model.Holder(fmt.Sprintf("payer-%d-%s", i, payee))
		g.Go(func() error {
			return store.Transfer(gctx, token, payer, payee, fixedpoint.FromUint64(10))
		})
	}
	require.NoError(t, g.Wait())

	bal, err := store.BalanceOf(ctx, token, payee)
	require.NoError(t, err)
	require.Equal(t, uint64(10*payers), bal.Uint64(), "every credit must land")
}

func TestRecordReceipt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	pair, err := model.NewPair(model.TokenID("x-"+uuid.NewString()), "y")
	require.NoError(t, err)

	receipt := model.Receipt{
		InstructionID: uuid.NewString(),
		Kind:          model.OpAddLiquidity,
		Holder:        "alice",
		After: model.PoolState{
			Pair:        pair,
			Fee:         3000,
			ReserveA:    fixedpoint.FromUint64(1000),
			ReserveB:    fixedpoint.FromUint64(4000),
			TotalShares: fixedpoint.FromUint64(2000),
			Version:     1,
		},
		AppliedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, receipt))
	require.NoError(t, store.Record(ctx, receipt), "replayed receipts are ignored")

	seq, ok, err := store.LatestSequence(ctx, pair.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), seq)
}
