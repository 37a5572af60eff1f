// Package config loads a node's configuration from a TOML/YAML file with
// environment-variable overrides, mirroring the layered defaults +
// config-file + environment approach used across the rest of the stack.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config covers both tiers' node configuration; a given binary only reads
// the fields relevant to the tier it runs (§6.1, plus the channel-tier
// additions §4.11 calls for).
type Config struct {
	DBPath                 string `mapstructure:"db_path"`
	RPCAddr                string `mapstructure:"rpc_uri"`
	Address                string `mapstructure:"address"`
	ChainID                uint64 `mapstructure:"chain_id"`
	CyclesLimit            uint64 `mapstructure:"cycles_limit"`
	BlockIntervalMs        int64  `mapstructure:"block_interval_ms"`
	ChallengeBlocksDefault uint64 `mapstructure:"challenge_blocks_default"`
	MempoolBucketCap       int    `mapstructure:"mempool_bucket_cap"`
	LogLevel               string `mapstructure:"log_level"`

	// Relayer-only fields: the tier RPC endpoints it shuttles between, the
	// private key it signs create-channel and settlement transactions
	// with, and how often it ticks.
	L2RPCAddr        string `mapstructure:"l2_rpc_uri"`
	L3RPCAddr        string `mapstructure:"l3_rpc_uri"`
	PrivateKeyHex    string `mapstructure:"private_key_hex"`
	SettleIntervalMs int64  `mapstructure:"settle_interval_ms"`
}

// Load reads path (TOML or YAML, by extension) into a Config, applying
// defaults first and letting an optional .env file and environment
// variables (COVALENT_* prefix) override individual fields last.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best effort: absent .env is not an error

	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("chain_id", 1)
	v.SetDefault("cycles_limit", 10_000_000)
	v.SetDefault("block_interval_ms", 3000)
	v.SetDefault("challenge_blocks_default", 100)
	v.SetDefault("mempool_bucket_cap", 4096)
	v.SetDefault("log_level", "info")
	v.SetDefault("settle_interval_ms", 3000)

	v.SetEnvPrefix("COVALENT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
