// Package config loads service configuration from an optional YAML file,
// a .env file and HASITPUMPED_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HASITPUMPED_STORAGE_DRIVER.
const EnvPrefix = "HASITPUMPED"

// Storage drivers.
const (
	DriverMemory     = "memory"
	DriverPostgres   = "postgres"
	DriverClickhouse = "clickhouse"
	DriverRedis      = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Model    ModelConfig    `mapstructure:"model"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig holds BitQuery API configuration
type UpstreamConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	AccessToken string        `mapstructure:"access_token"`
	QuoteMint   string        `mapstructure:"quote_mint"`
	PageSize    int           `mapstructure:"page_size"`    // trades per query
	MaxPages    int           `mapstructure:"max_pages"`    // queries per fetch
	HistoryDays int           `mapstructure:"history_days"` // 0 fetches the full archive
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second
	Burst       int           `mapstructure:"burst"`
}

// StorageConfig selects and configures the series store
type StorageConfig struct {
	Driver           string `mapstructure:"driver"`
	Migrate          bool   `mapstructure:"migrate"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
	ClickhouseDSN    string `mapstructure:"clickhouse_dsn"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	RedisPrefix      string `mapstructure:"redis_prefix"`
}

// AnalysisConfig holds orchestrator policy
type AnalysisConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"` // 0 means same UTC day
	RecentLimit     int           `mapstructure:"recent_limit"`
	RequireOnCurve  bool          `mapstructure:"require_on_curve"`
}

// ModelConfig locates the classifier artifact
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from .env, the optional file at path and
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The upstream token is commonly exported under its vendor name.
	if err := v.BindEnv("upstream.access_token", EnvPrefix+"_UPSTREAM_ACCESS_TOKEN", "BITQUERY_ACCESS_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default for AutomaticEnv to reach it through Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "75s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("upstream.endpoint", "https://streaming.bitquery.io/eap")
	v.SetDefault("upstream.access_token", "")
	v.SetDefault("upstream.quote_mint", "So11111111111111111111111111111111111111112")
	v.SetDefault("upstream.page_size", 10000)
	v.SetDefault("upstream.max_pages", 50)
	v.SetDefault("upstream.history_days", 300)
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.rate_limit", 2.0)
	v.SetDefault("upstream.burst", 1)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.migrate", true)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_max_conns", 10)
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "hasitpumped")

	v.SetDefault("analysis.timeout", "60s")
	v.SetDefault("analysis.write_timeout", "5s")
	v.SetDefault("analysis.freshness_window", "0s")
	v.SetDefault("analysis.recent_limit", 10)
	v.SetDefault("analysis.require_on_curve", false)

	v.SetDefault("model.path", "assets/model.json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "hasitpumped")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return fmt.Errorf("server.mode must be one of: debug, release, test")
	}

	if c.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required")
	}
	if c.Upstream.QuoteMint == "" {
		return fmt.Errorf("upstream.quote_mint is required")
	}
	if c.Upstream.PageSize < 1 {
		return fmt.Errorf("upstream.page_size must be at least 1")
	}
	if c.Upstream.MaxPages < 1 {
		return fmt.Errorf("upstream.max_pages must be at least 1")
	}
	if c.Upstream.HistoryDays < 0 {
		return fmt.Errorf("upstream.history_days must not be negative")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Upstream.RateLimit <= 0 {
		return fmt.Errorf("upstream.rate_limit must be positive")
	}
	if c.Upstream.Burst < 1 {
		return fmt.Errorf("upstream.burst must be at least 1")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return fmt.Errorf("storage.clickhouse_dsn is required for the clickhouse driver")
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, postgres, clickhouse, redis")
	}

	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be positive")
	}
	if c.Analysis.WriteTimeout <= 0 {
		return fmt.Errorf("analysis.write_timeout must be positive")
	}
	if c.Analysis.FreshnessWindow < 0 {
		return fmt.Errorf("analysis.freshness_window must not be negative")
	}
	if c.Analysis.RecentLimit < 1 {
		return fmt.Errorf("analysis.recent_limit must be at least 1")
	}

	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
