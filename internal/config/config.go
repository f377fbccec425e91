// Package config loads node configuration. Built-in defaults are overridden
// by the YAML file, which is overridden by EXCHANGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Peers     PeersConfig     `mapstructure:"peers"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type NodeConfig struct {
	ID       string `mapstructure:"id"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type EngineConfig struct {
	BlockSize       int    `mapstructure:"block_size"`
	AutoCheckpoint  bool   `mapstructure:"auto_checkpoint"`
	DuplicatePolicy string `mapstructure:"duplicate_policy"`
}

type PeersConfig struct {
	Addrs          []string      `mapstructure:"addrs"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PostgresConfig enables the trade journal when DSN is set.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig enables the orderbook cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Production bool   `mapstructure:"production"`
	Level      string `mapstructure:"level"`
}

type RateLimitConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.id", "node-1")
	v.SetDefault("node.grpc_addr", ":50051")
	v.SetDefault("node.http_addr", ":8080")
	v.SetDefault("engine.block_size", 10)
	v.SetDefault("engine.auto_checkpoint", true)
	v.SetDefault("engine.duplicate_policy", "client")
	v.SetDefault("peers.addrs", []string{})
	v.SetDefault("peers.request_timeout", 10*time.Second)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("log.production", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.interval", 100*time.Millisecond)
}

// Load reads path when it is non-empty; otherwise it looks for config.yaml in
// the working directory and carries on with defaults if there is none.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Engine.BlockSize <= 0 {
		return fmt.Errorf("config: engine.block_size must be > 0, got %d", c.Engine.BlockSize)
	}
	switch c.Engine.DuplicatePolicy {
	case "client", "off":
	default:
		return fmt.Errorf("config: engine.duplicate_policy must be client or off, got %q", c.Engine.DuplicatePolicy)
	}
	if c.Peers.RequestTimeout <= 0 {
		return errors.New("config: peers.request_timeout must be > 0")
	}
	return nil
}
