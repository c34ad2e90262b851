// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig governs batch execution defaults. RatePerSecond <= 0 disables
// rate limiting.
type FetchConfig struct {
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	RatePerSecond  int    `mapstructure:"rate_per_second"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	FailFast       bool   `mapstructure:"fail_fast"`
	UserAgent      string `mapstructure:"user_agent"`
	Fetcher        string `mapstructure:"fetcher"`
}

// CacheConfig sizes the optional single-URL fetch cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Capacity   int  `mapstructure:"capacity"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
}

// LoggingConfig selects the zap flavor and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Timeout returns the per-item timeout as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BATCHFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("fetch.max_concurrent must be positive, got %d", c.Fetch.MaxConcurrent)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive, got %d", c.Fetch.TimeoutSeconds)
	}
	switch c.Fetch.Fetcher {
	case "http", "colly":
	default:
		return fmt.Errorf("fetch.fetcher must be \"http\" or \"colly\", got %q", c.Fetch.Fetcher)
	}
	if c.Cache.Enabled {
		if c.Cache.Capacity <= 0 {
			return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
		}
		if c.Cache.TTLSeconds <= 0 {
			return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.max_concurrent", 5)
	v.SetDefault("fetch.rate_per_second", 10)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.fail_fast", false)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.fetcher", "http")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}
