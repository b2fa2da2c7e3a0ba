// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"registra/internal/infrastructure/storage/postgres"
)

// Config is the full process configuration, populated from environment
// variables with the REGISTRA_ prefix.
type Config struct {
	Database DatabaseConfig `envPrefix:"DB_"`
	Tx       TxConfig       `envPrefix:"TX_"`
	Log      LogConfig      `envPrefix:"LOG_"`

	// CursorKey signs pagination cursors. Must be identical on every
	// process serving the same clients, or cursors from one instance
	// will be rejected by another.
	CursorKey string `env:"CURSOR_KEY,required"`
}

// DatabaseConfig holds connection pool settings.
type DatabaseConfig struct {
	DSN               string        `env:"DSN,required"`
	MaxConns          int32         `env:"MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"30m"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// TxConfig holds unit-of-work defaults.
type TxConfig struct {
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBackoff   time.Duration `env:"RETRY_BACKOFF" envDefault:"50ms"`
	RetryJitterMax time.Duration `env:"RETRY_JITTER_MAX" envDefault:"50ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "REGISTRA_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// PoolConfig converts database settings to the pool's configuration.
func (c *Config) PoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		DSN:               c.Database.DSN,
		MaxConns:          c.Database.MaxConns,
		MinConns:          c.Database.MinConns,
		MaxConnLifetime:   c.Database.MaxConnLifetime,
		MaxConnIdleTime:   c.Database.MaxConnIdleTime,
		HealthCheckPeriod: c.Database.HealthCheckPeriod,
	}
}

// TxOptions converts transaction settings to the manager's options.
func (c *Config) TxOptions() postgres.TxOptions {
	opts := postgres.DefaultTxOptions()
	opts.Timeout = c.Tx.Timeout
	opts.MaxRetries = c.Tx.MaxRetries
	opts.RetryBackoff = c.Tx.RetryBackoff
	opts.RetryJitterMax = c.Tx.RetryJitterMax
	return opts
}
