package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "pebble", cfg.KVEngine)
	require.Equal(t, "kv", cfg.Ledger)
	require.Equal(t, "strict", cfg.Mode)
	require.Equal(t, uint64(1000), cfg.MinLiquidity)
	require.Equal(t, 50*time.Millisecond, cfg.RetryBackoff)
	require.Nil(t, cfg.Journals)
	require.Nil(t, cfg.Tokens)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("SETTLE_MODE", "relaxed")
	t.Setenv("SETTLE_TOKENS", "brc20:ordi=18,ORDI; 56:0xabc=6")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("journal", nil, "")
	flags.Int("max-retries", 0, "")
	require.NoError(t, flags.Parse([]string{"--journal", "jsonl", "--max-retries", "3"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, "relaxed", cfg.Mode)
	require.Equal(t, []string{"jsonl"}, cfg.Journals)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, map[string]string{"brc20:ordi": "18,ORDI", "56:0xabc": "6"}, cfg.Tokens)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	body := "kv-engine: leveldb\njournal: [jsonl, redis]\nredis-addr: localhost:6379\ntokens:\n  brc20:ordi: \"18,ORDI\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "leveldb", cfg.KVEngine)
	require.Equal(t, []string{"jsonl", "redis"}, cfg.Journals)
	require.Equal(t, "18,ORDI", cfg.Tokens["brc20:ordi"])
}

func TestValidate(t *testing.T) {
	base := Config{KVEngine: "pebble", Ledger: "kv"}
	require.NoError(t, base.Validate())

	bad := base
	bad.KVEngine = "bolt"
	require.Error(t, bad.Validate())

	bad = base
	bad.Ledger = "postgres"
	require.Error(t, bad.Validate())

	bad = base
	bad.Journals = []string{"redis"}
	require.Error(t, bad.Validate())

	bad = base
	bad.Journals = []string{"kafka"}
	require.Error(t, bad.Validate())
}
