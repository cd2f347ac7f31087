package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/storage"
)

type batchLedger interface {
	Port
	Batcher
}

func runLedgerSuite(t *testing.T, open func(t *testing.T) batchLedger) {
	t.Run("MintTransferBurn", func(t *testing.T) {
		ctx := context.Background()
		l := open(t)

		require.NoError(t, l.Transfer(ctx, "usd", "", "alice", fixedpoint.FromUint64(100)))
		require.NoError(t, l.Transfer(ctx, "usd", "alice", "bob", fixedpoint.FromUint64(30)))
		require.NoError(t, l.Transfer(ctx, "usd", "bob", "", fixedpoint.FromUint64(10)))

		requireBalance(t, l, "usd", "alice", 70)
		requireBalance(t, l, "usd", "bob", 20)
		requireBalance(t, l, "usd", "carol", 0)
	})

	t.Run("SeparatorsDoNotCollide", func(t *testing.T) {
		ctx := context.Background()
		l := open(t)
		share := model.ShareToken(model.Pair{A: "a", B: "b"})

		require.NoError(t, l.Transfer(ctx, "lp:a", "", "b/evil", fixedpoint.FromUint64(500)))
		requireBalance(t, l, share, "evil", 0)
		requireBalance(t, l, "lp:a", "b/evil", 500)

		require.NoError(t, l.Transfer(ctx, share, "", "victim", fixedpoint.FromUint64(100)))
		err := l.Transfer(ctx, "lp:a", "b/victim", "b/evil", fixedpoint.FromUint64(1))
		require.ErrorIs(t, err, model.ErrInsufficientBalance)
		requireBalance(t, l, share, "victim", 100)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		ctx := context.Background()
		l := open(t)

		require.NoError(t, l.Transfer(ctx, "usd", "", "alice", fixedpoint.FromUint64(5)))
		err := l.Transfer(ctx, "usd", "alice", "bob", fixedpoint.FromUint64(6))
		require.ErrorIs(t, err, model.ErrInsufficientBalance)
		requireBalance(t, l, "usd", "alice", 5)
	})

	t.Run("BatchIsAtomic", func(t *testing.T) {
		ctx := context.Background()
		l := open(t)

		require.NoError(t, l.Transfer(ctx, "a", "", "alice", fixedpoint.FromUint64(50)))
		require.NoError(t, l.Transfer(ctx, "b", "", "pool", fixedpoint.FromUint64(50)))

		err := l.TransferBatch(ctx, []model.Leg{
			{Token: "a", From: "alice", To: "pool", Amount: fixedpoint.FromUint64(50)},
			{Token: "b", From: "pool", To: "alice", Amount: fixedpoint.FromUint64(51)},
		})
		require.ErrorIs(t, err, model.ErrInsufficientBalance)
		requireBalance(t, l, "a", "alice", 50)
		requireBalance(t, l, "a", "pool", 0)

		require.NoError(t, l.TransferBatch(ctx, []model.Leg{
			{Token: "a", From: "alice", To: "pool", Amount: fixedpoint.FromUint64(50)},
			{Token: "b", From: "pool", To: "alice", Amount: fixedpoint.FromUint64(49)},
		}))
		requireBalance(t, l, "a", "pool", 50)
		requireBalance(t, l, "b", "alice", 49)
		requireBalance(t, l, "b", "pool", 1)
	})

	t.Run("LegsSeeEarlierLegs", func(t *testing.T) {
		ctx := context.Background()
		l := open(t)

		require.NoError(t, l.TransferBatch(ctx, []model.Leg{
			{Token: "a", From: "", To: "alice", Amount: fixedpoint.FromUint64(10)},
			{Token: "a", From: "alice", To: "bob", Amount: fixedpoint.FromUint64(10)},
		}))
		requireBalance(t, l, "a", "alice", 0)
		requireBalance(t, l, "a", "bob", 10)
	})
}

func requireBalance(t *testing.T, l Port, token model.TokenID, holder model.Holder, want uint64) {
	t.Helper()
	got, err := l.BalanceOf(context.Background(), token, holder)
	require.NoError(t, err)
	require.Equal(t, want, got.Uint64(), "%s balance of %s", token, holder)
}

func TestMemory(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) batchLedger { return NewMemory() })
}

func TestKV(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) batchLedger { return NewKV(storage.NewMemory()) })
}

func TestKVHolders(t *testing.T) {
	ctx := context.Background()
	l := NewKV(storage.NewMemory())
	require.NoError(t, l.Transfer(ctx, "lp:a/b", "", "alice", fixedpoint.FromUint64(7)))
	require.NoError(t, l.Transfer(ctx, "lp:a/b", "", "bob", fixedpoint.FromUint64(3)))
	require.NoError(t, l.Transfer(ctx, "a", "", "alice", fixedpoint.FromUint64(1)))
	require.NoError(t, l.Transfer(ctx, "lp:a", "", "b/mallory", fixedpoint.FromUint64(9)))

	holders, err := l.Holders(ctx, "lp:a/b")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	alice := holders["alice"]
	require.Equal(t, uint64(7), alice.Uint64())
	require.NotContains(t, holders, model.Holder("mallory"))

	holders, err = l.Holders(ctx, "lp:a")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	mallory := holders["b/mallory"]
	require.Equal(t, uint64(9), mallory.Uint64())
}

func TestMemorySupply(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Transfer(ctx, "a", "", "alice", fixedpoint.FromUint64(7)))
	require.NoError(t, l.Transfer(ctx, "a", "alice", "bob", fixedpoint.FromUint64(3)))
	supply := l.Supply("a")
	require.Equal(t, uint64(7), supply.Uint64())
}
