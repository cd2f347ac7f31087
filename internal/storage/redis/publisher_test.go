package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

func setupPublisher(t *testing.T) *Publisher {
	addr := os.Getenv("SETTLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SETTLE_TEST_REDIS_ADDR not set")
	}
	p := NewPublisher(addr, "settle:test:"+uuid.NewString())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Ping(ctx))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func testReceipt(t *testing.T, version uint64) model.Receipt {
	pair, err := model.NewPair(model.TokenID("x-"+uuid.NewString()), "y")
	require.NoError(t, err)
	before := model.PoolState{Pair: pair, Fee: 3000, Version: version - 1}
	after := before
	after.ReserveA = fixedpoint.FromUint64(100000)
	after.ReserveB = fixedpoint.FromUint64(100000)
	after.TotalShares = fixedpoint.FromUint64(100000)
	after.Version = version
	return model.Receipt{
		InstructionID: uuid.NewString(),
		Kind:          model.OpAddLiquidity,
		Holder:        "alice",
		Before:        before,
		After:         after,
		Outcome:       model.Outcome{SharesMinted: fixedpoint.FromUint64(100000)},
		AppliedAt:     time.Now(),
	}
}

func TestChannelNames(t *testing.T) {
	p := NewPublisherFromClient(nil, "")
	require.Equal(t, DefaultChannel, p.channel)
	require.Equal(t, "settle:receipts:a/b", p.PoolChannel(model.Pair{A: "a", B: "b"}))
	require.Equal(t, "redis", p.Name())
}

func TestRecordPublishesAndKeepsHistory(t *testing.T) {
	p := setupPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	receipt := testReceipt(t, 1)
	require.NoError(t, p.Record(ctx, receipt))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Contains(t, msg.Payload, receipt.InstructionID)

	history, err := p.History(ctx, receipt.After.Pair, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, receipt.InstructionID, history[0].InstructionID)
	require.Equal(t, "100000", history[0].SharesMinted)

	seq, err := p.client.Get(ctx, sequenceKey(receipt.After.Pair)).Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
}
