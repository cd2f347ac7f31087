package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammSettle/internal/chain"
	"ammSettle/internal/config"
	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/ledger"
	"ammSettle/internal/liquidity"
	"ammSettle/internal/pool"
	"ammSettle/internal/service"
	"ammSettle/internal/settlement"
	"ammSettle/internal/storage"
	"ammSettle/internal/storage/leveldb"
	"ammSettle/internal/storage/pebble"
	"ammSettle/internal/storage/postgres"
	redisjournal "ammSettle/internal/storage/redis"
	"ammSettle/internal/swap"
	"ammSettle/internal/tokens"
)

// stack is everything a command needs, built from configuration.
type stack struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *pool.Registry
	ledger    ledger.Port
	coord     *settlement.Coordinator
	svc       *service.Service
	metrics   *prometheus.Registry
	pg        *postgres.Store
	publisher *redisjournal.Publisher
	closers   []func()
}

func (s *stack) retry() service.RetryPolicy {
	return service.RetryPolicy{MaxRetries: s.cfg.MaxRetries, Backoff: s.cfg.RetryBackoff}
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	_ = s.logger.Sync()
}

// loadStack reads configuration for cmd and wires storage, ledger,
// journals, the coordinator and the service.
func loadStack(ctx context.Context, cmd *cobra.Command) (*stack, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *stack) build(ctx context.Context) error {
	cfg := s.cfg

	db, err := openDB(cfg.KVEngine, filepath.Join(cfg.DataDir, cfg.KVEngine))
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() { _ = db.Close() })
	s.registry = pool.NewRegistry(db, s.logger.Named("pool"))

	var pg *postgres.Store
	if cfg.Ledger == "postgres" || slices.Contains(cfg.Journals, "postgres") {
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres %s: %w", redactDSN(cfg.PGDSN), err)
		}
		s.closers = append(s.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		s.pg = pg
	}

	switch cfg.Ledger {
	case "postgres":
		s.ledger = pg
	default:
		s.ledger = ledger.NewKV(db)
	}

	journals, err := s.journals(ctx, pg)
	if err != nil {
		return err
	}

	dir, err := s.directory(ctx)
	if err != nil {
		return err
	}

	mode, err := settlement.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	policy, err := liquidity.ParsePolicy(cfg.DepositPolicy)
	if err != nil {
		return err
	}

	engines := settlement.Engines{
		Swap: swap.NewEngine(s.logger.Named("swap")),
		Liquidity: liquidity.NewEngine(liquidity.Config{
			MinimumLiquidity: fixedpoint.FromUint64(cfg.MinLiquidity),
			Policy:           policy,
		}, s.logger.Named("liquidity")),
	}

	logger := s.logger
	s.coord = settlement.New(s.registry, s.ledger, engines, settlement.Options{
		Mode:     mode,
		Journals: journals,
		Metrics:  settlement.NewMetrics(s.metrics),
		Logger:   s.logger.Named("settlement"),
		OnFault: func(pool string, err error) {
			logger.Fatal("pool halted", zap.String("pool", pool), zap.Error(err))
		},
	})
	s.svc = service.New(s.registry, engines, s.coord, dir, s.logger.Named("service"))

	s.logger.Debug("stack ready",
		zap.String("data_dir", cfg.DataDir),
		zap.String("kv_engine", cfg.KVEngine),
		zap.String("ledger", cfg.Ledger),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Strings("journals", cfg.Journals),
		zap.String("mode", string(mode)),
		zap.String("deposit_policy", string(policy)),
	)
	return nil
}

func openDB(engine, dir string) (storage.DB, error) {
	switch engine {
	case "leveldb":
		return leveldb.Open(dir)
	default:
		return pebble.Open(dir)
	}
}

func (s *stack) journals(ctx context.Context, pg *postgres.Store) ([]settlement.Journal, error) {
	var out []settlement.Journal
	for _, name := range s.cfg.Journals {
		switch name {
		case "jsonl":
			out = append(out, storage.NewJsonlJournal(s.cfg.JournalPath))
		case "postgres":
			out = append(out, pg)
		case "redis":
			pub := redisjournal.NewPublisher(s.cfg.RedisAddr, s.cfg.RedisChannel)
			s.closers = append(s.closers, func() { _ = pub.Close() })
			if err := pub.Ping(ctx); err != nil {
				return nil, err
			}
			s.publisher = pub
			out = append(out, pub)
		}
	}
	return out, nil
}

func (s *stack) directory(ctx context.Context) (tokens.Directory, error) {
	static, err := tokens.NewStatic(s.cfg.Tokens)
	if err != nil {
		return nil, err
	}
	if s.cfg.RPCURL == "" {
		return static, nil
	}

	client, err := chain.NewClient(ctx, s.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	evm, err := tokens.NewEVM(chainID.Uint64(), client, 0, s.logger.Named("tokens"))
	if err != nil {
		return nil, err
	}
	return tokens.Chain{static, evm}, nil
}
