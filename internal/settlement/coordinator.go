// Package settlement applies instructions to pools under a single writer per
// pool. It re-validates each instruction against the current state, moves
// ledger balances atomically and commits the new pool state.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ammSettle/internal/ledger"
	"ammSettle/internal/model"
	"ammSettle/internal/pool"
)

// Mode selects how stale instructions are treated.
type Mode string

const (
	// ModeStrict rejects any instruction whose snapshot is not the current state.
	ModeStrict Mode = "strict"
	// ModeRelaxed re-quotes a stale instruction and applies the fresh result
	// when it still satisfies the caller's bounds.
	ModeRelaxed Mode = "relaxed"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeRelaxed:
		return ModeRelaxed, nil
	default:
		return "", fmt.Errorf("unknown settlement mode %q", s)
	}
}

// PoolStore is the pool state the coordinator reads and commits.
// *pool.Registry implements it.
type PoolStore interface {
	Snapshot(ctx context.Context, pair model.Pair) (model.PoolState, error)
	Commit(ctx context.Context, prev, next model.PoolState, instructionID string) error
	Consumed(ctx context.Context, instructionID string) (bool, error)
}

// Quoter re-runs the engine that produced a request against a state.
type Quoter interface {
	Quote(state model.PoolState, req model.Request) (model.Instruction, error)
}

// Journal receives receipts after they commit.
type Journal interface {
	Record(ctx context.Context, receipt model.Receipt) error
}

// FaultHandler is called once per pool halted by a fatal fault.
type FaultHandler func(pool string, err error)

type Options struct {
	Mode     Mode
	Journals []Journal
	OnFault  FaultHandler
	Metrics  *Metrics
	Logger   *zap.Logger
}

type Coordinator struct {
	store    PoolStore
	ledger   ledger.Port
	quoter   Quoter
	mode     Mode
	journals []Journal
	onFault  FaultHandler
	metrics  *Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	locks  map[string]chan struct{}
	halted map[string]error
}

func New(store PoolStore, port ledger.Port, quoter Quoter, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeStrict
	}
	c := &Coordinator{
		store:    store,
		ledger:   port,
		quoter:   quoter,
		mode:     mode,
		journals: opts.Journals,
		onFault:  opts.OnFault,
		metrics:  opts.Metrics,
		logger:   logger,
		locks:    make(map[string]chan struct{}),
		halted:   make(map[string]error),
	}
	if c.onFault == nil {
		c.onFault = func(pool string, err error) {
			logger.Error("pool halted", zap.String("pool", pool), zap.Error(err))
		}
	}
	return c
}

// Mode returns the staleness mode.
func (c *Coordinator) Mode() Mode {
	return c.mode
}

// Halted returns the fault that halted the pool, if any.
func (c *Coordinator) Halted(pair model.Pair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted[pair.Key()]
}

// Apply settles one instruction. At most one Apply runs per pool at a time;
// a caller waiting for the pool gives up when ctx is done.
func (c *Coordinator) Apply(ctx context.Context, in model.Instruction) (model.Receipt, error) {
	started := time.Now()
	receipt, err := c.applyLocked(ctx, in)
	c.metrics.observe(in.Request.Kind, err, started)
	if err != nil && !model.IsFatal(err) {
		c.logger.Debug("instruction rejected",
			zap.String("instruction", in.ID),
			zap.String("pool", in.Snapshot.Pair.Key()),
			zap.String("kind", string(in.Request.Kind)),
			zap.String("reason", model.Kind(err)),
			zap.Error(err),
		)
	}
	return receipt, err
}

func (c *Coordinator) applyLocked(ctx context.Context, in model.Instruction) (model.Receipt, error) {
	if err := checkShape(in); err != nil {
		return model.Receipt{}, err
	}
	key := in.Snapshot.Pair.Key()

	slot := c.slot(key)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return model.Receipt{}, ctx.Err()
	}
	defer func() { <-slot }()

	if err := c.Halted(in.Snapshot.Pair); err != nil {
		return model.Receipt{}, fmt.Errorf("pool %s halted: %w", key, err)
	}
	return c.apply(ctx, in)
}

func (c *Coordinator) apply(ctx context.Context, in model.Instruction) (model.Receipt, error) {
	pair := in.Snapshot.Pair
	key := pair.Key()

	consumed, err := c.store.Consumed(ctx, in.ID)
	if err != nil {
		return model.Receipt{}, err
	}
	if consumed {
		return model.Receipt{}, fmt.Errorf("%w: %s", model.ErrAlreadyApplied, in.ID)
	}

	current, err := c.store.Snapshot(ctx, pair)
	if err != nil {
		return model.Receipt{}, err
	}
	stale := current != in.Snapshot
	if stale {
		c.metrics.stale()
		if c.mode == ModeStrict {
			return model.Receipt{}, fmt.Errorf("%w: pool %s moved from version %d to %d",
				model.ErrStaleQuote, key, in.Snapshot.Version, current.Version)
		}
	}

	fresh, err := c.quoter.Quote(current, in.Request)
	if err != nil {
		return model.Receipt{}, err
	}
	effective := in
	if stale {
		effective = fresh
		effective.ID = in.ID
		c.metrics.requoted()
	} else if !fresh.Equivalent(in) {
		return model.Receipt{}, fmt.Errorf("%w: %s does not match its own request", model.ErrInvalidInstruction, in.ID)
	}

	if err := pool.CheckInvariant(current, effective.Next, effective.Request.Kind); err != nil {
		return model.Receipt{}, c.fault(key, err)
	}

	if err := c.transfer(ctx, effective.Legs); err != nil {
		if model.IsFatal(err) {
			return model.Receipt{}, c.fault(key, err)
		}
		return model.Receipt{}, err
	}

	if err := c.store.Commit(ctx, current, effective.Next, in.ID); err != nil {
		if rerr := c.reverse(ctx, effective.Legs); rerr != nil {
			return model.Receipt{}, c.fault(key, rerr)
		}
		if model.IsFatal(err) {
			return model.Receipt{}, c.fault(key, err)
		}
		return model.Receipt{}, err
	}

	after, err := c.store.Snapshot(ctx, pair)
	if err != nil {
		return model.Receipt{}, c.fault(key, &model.InvariantViolation{Pool: key, Rule: "reread", Detail: err.Error()})
	}
	if after != effective.Next {
		return model.Receipt{}, c.fault(key, &model.InvariantViolation{
			Pool:   key,
			Rule:   "reread",
			Detail: fmt.Sprintf("committed version %d reads back as version %d", effective.Next.Version, after.Version),
		})
	}
	if err := pool.Validate(after); err != nil {
		return model.Receipt{}, c.fault(key, err)
	}

	receipt := model.Receipt{
		InstructionID: in.ID,
		Kind:          effective.Request.Kind,
		Holder:        effective.Request.Holder,
		Before:        current,
		After:         after,
		Legs:          effective.Legs,
		Outcome:       effective.Outcome,
		Requoted:      stale,
		AppliedAt:     time.Now().UTC(),
	}
	c.logger.Info("instruction applied",
		zap.String("instruction", in.ID),
		zap.String("pool", key),
		zap.String("kind", string(receipt.Kind)),
		zap.Uint64("version", after.Version),
		zap.Bool("requoted", stale),
	)
	c.record(ctx, receipt)
	return receipt, nil
}

// transfer applies legs atomically, falling back to sequential transfers
// with compensation when the ledger cannot batch.
func (c *Coordinator) transfer(ctx context.Context, legs []model.Leg) error {
	if b, ok := c.ledger.(ledger.Batcher); ok {
		return b.TransferBatch(ctx, legs)
	}
	for i, leg := range legs {
		if err := c.ledger.Transfer(ctx, leg.Token, leg.From, leg.To, leg.Amount); err != nil {
			if rerr := c.reverseSequential(ctx, legs[:i]); rerr != nil {
				return &model.InvariantViolation{
					Pool:   "ledger",
					Rule:   "compensation",
					Detail: fmt.Sprintf("undo after %v failed: %v", err, rerr),
				}
			}
			return err
		}
	}
	return nil
}

func (c *Coordinator) reverse(ctx context.Context, legs []model.Leg) error {
	if b, ok := c.ledger.(ledger.Batcher); ok {
		undo := make([]model.Leg, 0, len(legs))
		for i := len(legs) - 1; i >= 0; i-- {
			undo = append(undo, legs[i].Reverse())
		}
		if err := b.TransferBatch(ctx, undo); err != nil {
			return &model.InvariantViolation{Pool: "ledger", Rule: "compensation", Detail: err.Error()}
		}
		return nil
	}
	if err := c.reverseSequential(ctx, legs); err != nil {
		return &model.InvariantViolation{Pool: "ledger", Rule: "compensation", Detail: err.Error()}
	}
	return nil
}

func (c *Coordinator) reverseSequential(ctx context.Context, applied []model.Leg) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		undo := applied[i].Reverse()
		if err := c.ledger.Transfer(ctx, undo.Token, undo.From, undo.To, undo.Amount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) record(ctx context.Context, receipt model.Receipt) {
	for _, j := range c.journals {
		if err := j.Record(ctx, receipt); err != nil {
			name := journalName(j)
			c.metrics.journalFailed(name)
			c.logger.Warn("journal record failed",
				zap.String("journal", name),
				zap.String("instruction", receipt.InstructionID),
				zap.Error(err),
			)
		}
	}
}

// fault halts the pool and reports err.
func (c *Coordinator) fault(key string, err error) error {
	c.mu.Lock()
	_, already := c.halted[key]
	if !already {
		c.halted[key] = err
	}
	c.mu.Unlock()

	if !already {
		c.metrics.halted()
		c.logger.Error("invariant violation", zap.String("pool", key), zap.Error(err))
		c.onFault(key, err)
	}
	return err
}

func (c *Coordinator) slot(key string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.locks[key]
	if !ok {
		s = make(chan struct{}, 1)
		c.locks[key] = s
	}
	return s
}

func checkShape(in model.Instruction) error {
	if in.ID == "" {
		return fmt.Errorf("%w: missing id", model.ErrInvalidInstruction)
	}
	if in.Request.Pair != in.Snapshot.Pair || in.Next.Pair != in.Snapshot.Pair {
		return fmt.Errorf("%w: %s mixes pools", model.ErrInvalidInstruction, in.ID)
	}
	if model.IsPoolAccount(in.Request.Holder) {
		return fmt.Errorf("%w: %s acts as pool account %s", model.ErrInvalidInstruction, in.ID, in.Request.Holder)
	}
	return nil
}

type namedJournal interface {
	Name() string
}

func journalName(j Journal) string {
	if n, ok := j.(namedJournal); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", j)
}
