package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
	"ammSettle/internal/storage"
)

var (
	poolPrefix    = []byte("pool/")
	appliedPrefix = []byte("applied/")
)

// Registry maps canonical pairs to pool states persisted in a storage.DB.
// Pools created but not yet seeded stay in memory until their first deposit
// commits, and are not listed.
type Registry struct {
	db     storage.DB
	logger *zap.Logger

	pendingMu sync.Mutex
	pending   map[string]model.PoolState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRegistry(db storage.DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		db:      db,
		logger:  logger,
		pending: make(map[string]model.PoolState),
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetOrCreate returns the pool for the pair {x, y}. With create set, a
// missing pool is returned as a pending empty pool with the given fee.
func (r *Registry) GetOrCreate(ctx context.Context, x, y model.TokenID, fee fixedpoint.FeeRate, create bool) (model.PoolState, error) {
	if err := fee.Validate(); err != nil {
		return model.PoolState{}, fmt.Errorf("%w: %v", model.ErrInvalidFee, err)
	}
	pair, err := model.NewPair(x, y)
	if err != nil {
		return model.PoolState{}, err
	}

	state, found, err := r.load(ctx, pair)
	if err != nil {
		return model.PoolState{}, err
	}
	if found {
		if state.Fee != fee {
			return model.PoolState{}, fmt.Errorf("%w: pool %s has fee %s, requested %s", model.ErrInvalidFee, pair, state.Fee, fee)
		}
		return state, nil
	}
	if !create {
		return model.PoolState{}, fmt.Errorf("%w: %s", model.ErrPoolNotFound, pair)
	}

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if existing, ok := r.pending[pair.Key()]; ok {
		if existing.Fee != fee {
			return model.PoolState{}, fmt.Errorf("%w: pending pool %s has fee %s, requested %s", model.ErrInvalidFee, pair, existing.Fee, fee)
		}
		return existing, nil
	}
	state = model.PoolState{Pair: pair, Fee: fee}
	r.pending[pair.Key()] = state
	r.logger.Debug("pending pool created", zap.String("pool", pair.Key()), zap.Stringer("fee", fee))
	return state, nil
}

// Snapshot returns a copy of the current state of the pair's pool. Pending
// pools are returned as empty states.
func (r *Registry) Snapshot(ctx context.Context, pair model.Pair) (model.PoolState, error) {
	state, found, err := r.load(ctx, pair)
	if err != nil {
		return model.PoolState{}, err
	}
	if found {
		return state, nil
	}
	r.pendingMu.Lock()
	state, ok := r.pending[pair.Key()]
	r.pendingMu.Unlock()
	if ok {
		return state, nil
	}
	return model.PoolState{}, fmt.Errorf("%w: %s", model.ErrPoolNotFound, pair)
}

// Commit persists next together with the consumed instruction id. It fails
// with ErrStaleQuote when the stored version is not prev.Version.
func (r *Registry) Commit(ctx context.Context, prev, next model.PoolState, instructionID string) error {
	if instructionID == "" {
		return fmt.Errorf("%w: missing instruction id", model.ErrInvalidInstruction)
	}
	if next.Pair != prev.Pair || next.Version != prev.Version+1 {
		return fmt.Errorf("%w: commit of %s v%d over %s v%d", model.ErrInvalidInstruction, next.Pair, next.Version, prev.Pair, prev.Version)
	}

	mu := r.commitLock(prev.Pair.Key())
	mu.Lock()
	defer mu.Unlock()

	stored, found, err := r.load(ctx, prev.Pair)
	if err != nil {
		return err
	}
	var storedVersion uint64
	if found {
		storedVersion = stored.Version
	}
	if storedVersion != prev.Version {
		return fmt.Errorf("%w: pool %s is at version %d, commit expects %d", model.ErrStaleQuote, prev.Pair, storedVersion, prev.Version)
	}

	consumed, err := r.Consumed(ctx, instructionID)
	if err != nil {
		return err
	}
	if consumed {
		return fmt.Errorf("%w: %s", model.ErrAlreadyApplied, instructionID)
	}

	value, err := json.Marshal(next.View())
	if err != nil {
		return fmt.Errorf("encode pool %s: %w", next.Pair, err)
	}
	ops := []storage.BatchOperation{
		storage.Put(poolKey(next.Pair), value),
		storage.Put(appliedKey(instructionID), []byte(next.Pair.Key())),
	}
	if err := r.db.Batch(ctx, ops); err != nil {
		return fmt.Errorf("commit pool %s: %w", next.Pair, err)
	}

	r.pendingMu.Lock()
	delete(r.pending, next.Pair.Key())
	r.pendingMu.Unlock()
	return nil
}

// commitLock returns the mutex serializing commits to one pool.
func (r *Registry) commitLock(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// Consumed reports whether the instruction id has been committed.
func (r *Registry) Consumed(ctx context.Context, instructionID string) (bool, error) {
	_, err := r.db.Read(ctx, appliedKey(instructionID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read applied %s: %w", instructionID, err)
	}
	return true, nil
}

// List returns every committed pool in key order.
func (r *Registry) List(ctx context.Context) ([]model.PoolState, error) {
	iter, err := r.db.Iterator(ctx, poolPrefix, storage.PrefixEnd(poolPrefix))
	if err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	defer iter.Close()

	var pools []model.PoolState
	for iter.Next() {
		state, err := decodeState(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode pool %s: %w", bytes.TrimPrefix(iter.Key(), poolPrefix), err)
		}
		pools = append(pools, state)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return pools, nil
}

func (r *Registry) load(ctx context.Context, pair model.Pair) (model.PoolState, bool, error) {
	value, err := r.db.Read(ctx, poolKey(pair))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return model.PoolState{}, false, nil
	}
	if err != nil {
		return model.PoolState{}, false, fmt.Errorf("read pool %s: %w", pair, err)
	}
	state, err := decodeState(value)
	if err != nil {
		return model.PoolState{}, false, fmt.Errorf("decode pool %s: %w", pair, err)
	}
	return state, true, nil
}

func decodeState(value []byte) (model.PoolState, error) {
	var view model.PoolView
	if err := json.Unmarshal(value, &view); err != nil {
		return model.PoolState{}, err
	}
	return model.StateFromView(view)
}

func poolKey(pair model.Pair) []byte {
	return append(append([]byte{}, poolPrefix...), pair.Key()...)
}

func appliedKey(id string) []byte {
	return append(append([]byte{}, appliedPrefix...), id...)
}
