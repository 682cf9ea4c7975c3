// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"

	"medstock/internal/core/tx"
)

// Config holds runtime configuration for the server and worker.
type Config struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"development"`
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns       int32         `envconfig:"DB_MIN_CONNS" default:"5"`
	DBMaxConnLife    time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	DBMaxConnIdle    time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
	DBHealthCheck    time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	TxIsolation      string        `envconfig:"TX_ISOLATION" default:"read committed"`
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"5s"`

	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	ViewCacheTTL time.Duration `envconfig:"VIEW_CACHE_TTL" default:"5m"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	ConsumptionMaxRetries int    `envconfig:"CONSUMPTION_MAX_RETRIES" default:"0"`
	InvoiceCurrency       string `envconfig:"INVOICE_CURRENCY" default:"USD"`

	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxChannel      string        `envconfig:"OUTBOX_CHANNEL" default:"events.consumption"`

	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyCleanup time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"1h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url must be provided")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	if cfg.ConsumptionMaxRetries < 0 {
		return nil, errors.New("CONSUMPTION_MAX_RETRIES must not be negative")
	}
	if cfg.IdempotencyCleanup <= 0 {
		return nil, errors.New("IDEMPOTENCY_CLEANUP_INTERVAL must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Isolation returns the configured transaction isolation level.
func (c *Config) Isolation() tx.Isolation {
	return tx.ParseIsolation(c.TxIsolation)
}
