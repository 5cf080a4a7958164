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
	RPCURL string
	PgDSN  string

	SafeAddress   string
	Whitelist     []string
	FundingTokens []string
	NativeToken   string

	StableTokens   []string
	Feeds          map[string]string
	ReferencePools map[string]string
	MaxFeedAge     time.Duration

	UniswapManager   string
	UniswapFactory   string
	VelodromeManager string
	VelodromeFactory string

	RecheckBlocks uint64

	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Journal           string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PollInterval      time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 15*time.Second)
	v.SetDefault("max-feed-age", time.Hour)
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
		RPCURL:            v.GetString("rpc"),
		PgDSN:             v.GetString("pg-dsn"),
		SafeAddress:       v.GetString("safe"),
		Whitelist:         getStringSlice(v, "whitelist"),
		FundingTokens:     getStringSlice(v, "funding-token"),
		NativeToken:       v.GetString("native-token"),
		StableTokens:      getStringSlice(v, "stable-token"),
		Feeds:             v.GetStringMapString("feeds"),
		ReferencePools:    v.GetStringMapString("reference-pools"),
		MaxFeedAge:        v.GetDuration("max-feed-age"),
		UniswapManager:    v.GetString("uniswap-manager"),
		UniswapFactory:    v.GetString("uniswap-factory"),
		VelodromeManager:  v.GetString("velodrome-manager"),
		VelodromeFactory:  v.GetString("velodrome-factory"),
		RecheckBlocks:     v.GetUint64("recheck-blocks"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Journal:           v.GetString("journal"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		PollInterval:      v.GetDuration("poll-interval"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the fields without which the tracker cannot start.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.SafeAddress == "" {
		return fmt.Errorf("safe address is required")
	}
	if c.UniswapManager == "" && c.VelodromeManager == "" {
		return fmt.Errorf("at least one position manager is required")
	}
	if (c.UniswapManager == "") != (c.UniswapFactory == "") {
		return fmt.Errorf("uniswap manager and factory must be set together")
	}
	if (c.VelodromeManager == "") != (c.VelodromeFactory == "") {
		return fmt.Errorf("velodrome manager and factory must be set together")
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
