package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	DataDir       string
	KVEngine      string
	Ledger        string
	PGDSN         string
	Journals      []string
	JournalPath   string
	RedisAddr     string
	RedisChannel  string
	RPCURL        string
	Tokens        map[string]string
	Mode          string
	DepositPolicy string
	MinLiquidity  uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "./data/settle")
	v.SetDefault("kv-engine", "pebble")
	v.SetDefault("ledger", "kv")
	v.SetDefault("journal-path", "./data/receipts.jsonl")
	v.SetDefault("redis-channel", "settle:receipts")
	v.SetDefault("mode", "strict")
	v.SetDefault("deposit-policy", "proportional")
	v.SetDefault("min-liquidity", uint64(1000))
	v.SetDefault("max-retries", 0)
	v.SetDefault("retry-backoff", 50*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DataDir:       v.GetString("data-dir"),
		KVEngine:      strings.ToLower(v.GetString("kv-engine")),
		Ledger:        strings.ToLower(v.GetString("ledger")),
		PGDSN:         v.GetString("pg-dsn"),
		Journals:      getStringSlice(v, "journal"),
		JournalPath:   v.GetString("journal-path"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisChannel:  v.GetString("redis-channel"),
		RPCURL:        v.GetString("rpc"),
		Tokens:        getStringMap(v, "tokens"),
		Mode:          v.GetString("mode"),
		DepositPolicy: v.GetString("deposit-policy"),
		MinLiquidity:  v.GetUint64("min-liquidity"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that select implementations.
func (c Config) Validate() error {
	switch c.KVEngine {
	case "pebble", "leveldb":
	default:
		return fmt.Errorf("unknown kv-engine %q", c.KVEngine)
	}
	switch c.Ledger {
	case "kv":
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown ledger %q", c.Ledger)
	}
	for _, j := range c.Journals {
		switch j {
		case "jsonl":
		case "postgres":
			if c.PGDSN == "" {
				return fmt.Errorf("pg-dsn is required for the postgres journal")
			}
		case "redis":
			if c.RedisAddr == "" {
				return fmt.Errorf("redis-addr is required for the redis journal")
			}
		default:
			return fmt.Errorf("unknown journal %q", j)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// getStringMap accepts a map from a config file, a list of "k=v" items, or
// "k=v;k=v" text from a flag or the environment. Values may contain commas.
func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return nil
	}

	out := make(map[string]string)
	switch typed := v.Get(key).(type) {
	case map[string]interface{}:
		for k, val := range typed {
			out[strings.TrimSpace(k)] = strings.TrimSpace(fmt.Sprintf("%v", val))
		}
	case map[string]string:
		for k, val := range typed {
			out[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	case string:
		for _, item := range cleanStrings(strings.Split(typed, ";")) {
			addPair(out, item)
		}
	default:
		for _, item := range getStringSlice(v, key) {
			addPair(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func addPair(out map[string]string, item string) {
	k, val, ok := strings.Cut(item, "=")
	if !ok {
		return
	}
	out[strings.TrimSpace(k)] = strings.TrimSpace(val)
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
