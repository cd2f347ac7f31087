package ledger

import (
	"context"
	"sync"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

// Memory is an in-process ledger. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	balances map[balanceKey]model.Amount
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[balanceKey]model.Amount)}
}

func (m *Memory) Transfer(ctx context.Context, token model.TokenID, from, to model.Holder, amount model.Amount) error {
	return m.TransferBatch(ctx, []model.Leg{{Token: token, From: from, To: to, Amount: amount}})
}

func (m *Memory) TransferBatch(ctx context.Context, legs []model.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := applyLegs(legs, func(k balanceKey) (model.Amount, error) {
		return m.balances[k], nil
	})
	if err != nil {
		return err
	}
	for k, v := range next {
		if v.IsZero() {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	return nil
}

func (m *Memory) BalanceOf(ctx context.Context, token model.TokenID, holder model.Holder) (model.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.balances[balanceKey{token, holder}]; ok {
		return v, nil
	}
	return fixedpoint.Zero(), nil
}

// Supply sums every balance of token. Used by tests to check conservation.
func (m *Memory) Supply(token model.TokenID) model.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total model.Amount
	for k, v := range m.balances {
		if k.token == token {
			total.Add(&total, &v)
		}
	}
	return total
}
