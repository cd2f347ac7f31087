package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammSettle/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_key     TEXT PRIMARY KEY,
	token_a      TEXT NOT NULL,
	token_b      TEXT NOT NULL,
	fee          BIGINT NOT NULL,
	reserve_a    NUMERIC(78,0) NOT NULL,
	reserve_b    NUMERIC(78,0) NOT NULL,
	total_shares NUMERIC(78,0) NOT NULL,
	version      BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS receipts (
	instruction_id TEXT PRIMARY KEY,
	pool_key       TEXT NOT NULL,
	sequence       BIGINT NOT NULL,
	kind           TEXT NOT NULL,
	holder         TEXT NOT NULL,
	record         JSONB NOT NULL,
	applied_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (pool_key, sequence)
);
CREATE TABLE IF NOT EXISTS balances (
	token      TEXT NOT NULL,
	holder     TEXT NOT NULL,
	amount     NUMERIC(78,0) NOT NULL CHECK (amount >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (token, holder)
);
`

// Store provides Postgres persistence for pools, receipts and balances.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool state, never moving a pool back to an
// older version.
func (s *Store) UpsertPools(ctx context.Context, pools []model.PoolState) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_key, token_a, token_b, fee, reserve_a, reserve_b, total_shares, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, now(), now())
			ON CONFLICT (pool_key)
			DO UPDATE SET
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				total_shares = EXCLUDED.total_shares,
				version = EXCLUDED.version,
				updated_at = now()
			WHERE pools.version < EXCLUDED.version
		`,
			pool.Pair.Key(),
			string(pool.Pair.A),
			string(pool.Pair.B),
			int64(pool.Fee),
			pool.ReserveA.Dec(),
			pool.ReserveB.Dec(),
			pool.TotalShares.Dec(),
			int64(pool.Version),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertReceipts stores receipts; replays of a known instruction are ignored.
func (s *Store) InsertReceipts(ctx context.Context, receipts []model.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range receipts {
		rec := r.Record()
		batch.Queue(`
			INSERT INTO receipts (
				instruction_id, pool_key, sequence, kind, holder, record, applied_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (instruction_id) DO NOTHING
		`,
			rec.InstructionID,
			rec.Pool,
			int64(rec.Sequence),
			rec.Kind,
			rec.Holder,
			rec,
			r.AppliedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range receipts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Record mirrors one committed receipt and the resulting pool state.
func (s *Store) Record(ctx context.Context, receipt model.Receipt) error {
	if err := s.InsertReceipts(ctx, []model.Receipt{receipt}); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	if err := s.UpsertPools(ctx, []model.PoolState{receipt.After}); err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// LatestSequence returns the highest recorded sequence for a pool.
func (s *Store) LatestSequence(ctx context.Context, poolKey string) (uint64, bool, error) {
	if poolKey == "" {
		return 0, false, fmt.Errorf("pool key required")
	}
	var seq *int64
	row := s.pool.QueryRow(ctx, `SELECT max(sequence) FROM receipts WHERE pool_key=$1`, poolKey)
	if err := row.Scan(&seq); err != nil {
		return 0, false, err
	}
	if seq == nil {
		return 0, false, nil
	}
	return uint64(*seq), true, nil
}
