// Package redis publishes commit receipts to Redis pub/sub channels and keeps
// a short per-pool history list.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"ammSettle/internal/model"
)

const (
	DefaultChannel = "settle:receipts"
	defaultHistory = 1000
)

// Publisher is a settlement journal backed by Redis.
type Publisher struct {
	client  *goredis.Client
	channel string
	history int64
}

func NewPublisher(addr, channel string) *Publisher {
	return NewPublisherFromClient(goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   0,
	}), channel)
}

func NewPublisherFromClient(client *goredis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, history: defaultHistory}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// PoolChannel is the channel carrying receipts of a single pool.
func (p *Publisher) PoolChannel(pair model.Pair) string {
	return p.channel + ":" + pair.Key()
}

func historyKey(pair model.Pair) string {
	return "settle:history:" + pair.Key()
}

func sequenceKey(pair model.Pair) string {
	return "settle:sequence:" + pair.Key()
}

// Record publishes the receipt on the shared and the per-pool channel and
// prepends it to the pool's history list.
func (p *Publisher) Record(ctx context.Context, receipt model.Receipt) error {
	data, err := json.Marshal(receipt.Record())
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	pair := receipt.After.Pair

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.Publish(ctx, p.PoolChannel(pair), data)
	pipe.LPush(ctx, historyKey(pair), data)
	pipe.LTrim(ctx, historyKey(pair), 0, p.history-1)
	pipe.Set(ctx, sequenceKey(pair), receipt.Sequence(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish receipt %s: %w", receipt.InstructionID, err)
	}
	return nil
}

// History returns up to limit receipts of a pool, newest first.
func (p *Publisher) History(ctx context.Context, pair model.Pair, limit int64) ([]model.ReceiptRecord, error) {
	if limit <= 0 {
		limit = p.history
	}
	items, err := p.client.LRange(ctx, historyKey(pair), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", pair.Key(), err)
	}
	out := make([]model.ReceiptRecord, 0, len(items))
	for _, item := range items {
		var rec model.ReceiptRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", pair.Key(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Subscribe delivers receipts published on the shared channel until ctx is
// done. Messages that do not decode are skipped.
func (p *Publisher) Subscribe(ctx context.Context, handler func(model.ReceiptRecord)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.ReceiptRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				continue
			}
			handler(rec)
		}
	}
}
