package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/storage"
)

var balancePrefix = []byte("bal/")

// KV is a ledger persisted in a storage.DB under
// bal/<uvarint len(token)><token><holder>. The length prefix keeps every
// (token, holder) key distinct even when ids contain separators. A batch is
// written with one atomic storage batch.
type KV struct {
	db storage.DB
	mu sync.Mutex
}

func NewKV(db storage.DB) *KV {
	return &KV{db: db}
}

func (l *KV) Transfer(ctx context.Context, token model.TokenID, from, to model.Holder, amount model.Amount) error {
	return l.TransferBatch(ctx, []model.Leg{{Token: token, From: from, To: to, Amount: amount}})
}

func (l *KV) TransferBatch(ctx context.Context, legs []model.Leg) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := applyLegs(legs, func(k balanceKey) (model.Amount, error) {
		return l.read(ctx, k)
	})
	if err != nil {
		return err
	}

	keys := make([]balanceKey, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(encodeBalanceKey(keys[i])) < string(encodeBalanceKey(keys[j]))
	})

	ops := make([]storage.BatchOperation, 0, len(keys))
	for _, k := range keys {
		v := next[k]
		if v.IsZero() {
			ops = append(ops, storage.BatchOperation{Type: storage.BatchDelete, Key: encodeBalanceKey(k)})
			continue
		}
		ops = append(ops, storage.Put(encodeBalanceKey(k), []byte(v.Dec())))
	}
	if err := l.db.Batch(ctx, ops); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}
	return nil
}

func (l *KV) BalanceOf(ctx context.Context, token model.TokenID, holder model.Holder) (model.Amount, error) {
	return l.read(ctx, balanceKey{token, holder})
}

// Holders lists every non-zero balance of token.
func (l *KV) Holders(ctx context.Context, token model.TokenID) (map[model.Holder]model.Amount, error) {
	prefix := tokenPrefix(token)
	iter, err := l.db.Iterator(ctx, prefix, storage.PrefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	defer iter.Close()

	out := make(map[model.Holder]model.Amount)
	for iter.Next() {
		v, err := fixedpoint.Parse(string(iter.Value()))
		if err != nil {
			return nil, err
		}
		out[model.Holder(iter.Key()[len(prefix):])] = v
	}
	return out, iter.Error()
}

func (l *KV) read(ctx context.Context, k balanceKey) (model.Amount, error) {
	value, err := l.db.Read(ctx, encodeBalanceKey(k))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return fixedpoint.Zero(), nil
	}
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("read balance %s/%s: %w", k.token, k.holder, err)
	}
	return fixedpoint.Parse(string(value))
}

func tokenPrefix(token model.TokenID) []byte {
	key := append([]byte{}, balancePrefix...)
	key = binary.AppendUvarint(key, uint64(len(token)))
	return append(key, string(token)...)
}

func encodeBalanceKey(k balanceKey) []byte {
	return append(tokenPrefix(k.token), string(k.holder)...)
}
