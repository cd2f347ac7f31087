package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "settle",
		Short:        "Constant-product AMM settlement engine",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("data-dir", "./data/settle", "directory of the pool and balance store")
	flags.String("kv-engine", "pebble", "key-value engine (pebble, leveldb)")
	flags.String("ledger", "kv", "ledger backend (kv, postgres)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.StringSlice("journal", nil, "receipt journals (jsonl, postgres, redis; comma-separated)")
	flags.String("journal-path", "./data/receipts.jsonl", "JSONL receipt journal path")
	flags.String("redis-addr", "", "Redis address for the receipt publisher")
	flags.String("redis-channel", "settle:receipts", "Redis channel for receipts")
	flags.String("rpc", "", "EVM RPC URL for ERC20 token metadata")
	flags.StringArray("tokens", nil, "token metadata as id=decimals[,symbol] (repeatable)")
	flags.String("mode", "strict", "staleness mode (strict, relaxed)")
	flags.String("deposit-policy", "proportional", "deposit policy (proportional, single-sided)")
	flags.Uint64("min-liquidity", 1000, "share floor for seeding deposits, 0 disables it")
	flags.Int("max-retries", 0, "re-quote attempts after a stale quote")
	flags.Duration("retry-backoff", 50*time.Millisecond, "initial re-quote backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPoolCmd(),
		newPoolsCmd(),
		newFundCmd(),
		newBalanceCmd(),
		newHoldersCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newSwapCmd(),
		newReceiptsCmd(),
		newBenchCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
