// Package flowcache keeps flow snapshots around after the node has moved on,
// so clients can poll or stream a flow's progress and fetch its outcome.
package flowcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores for unknown or expired run ids.
var ErrNotFound = errors.New("flow snapshot not found")

// Store persists encoded flow snapshots by run id.
//
// A ttl of zero or less stores the entry without expiry.
type Store interface {
	Put(ctx context.Context, runID string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
	// Sweep removes entries that expired at or before now and reports how
	// many were removed. Stores with native expiry may return zero.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures the snapshot store and the tracker.
type Config struct {
	Backend       string        `mapstructure:"backend"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// DefaultConfig keeps snapshots in memory for an hour.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMemory,
		PollInterval:  2 * time.Second,
		Retention:     time.Hour,
		SweepSchedule: "@every 1m",
		RedisPrefix:   "ledger-gateway:flow:",
	}
}

// Validate checks the backend settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("flow cache: redis_addr required for redis backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("flow cache: postgres_dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("flow cache: unknown backend %q", c.Backend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("flow cache: poll_interval must be positive")
	}
	return nil
}

// Open creates the store named by cfg.Backend. The Postgres backend applies
// its migration before returning.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}), nil
	case BackendPostgres:
		store, err := OpenPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Apply(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("flow cache: unknown backend %q", cfg.Backend)
}
