// Package config loads shard settings from the environment
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mcoot/liveshard/internal/model"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// Config holds every shard setting
type Config struct {
	Environment string `env:"LIVESHARD_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        int    `env:"PORT" envDefault:"8080"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"liveshard"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"liveshard.db"`

	RecordCollection string        `env:"RECORD_COLLECTION" envDefault:"PlayerData"`
	RecordLockTTL    time.Duration `env:"RECORD_LOCK_TTL" envDefault:"5m"`
	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"1m"`

	CharacterLoadTimeout time.Duration `env:"CHARACTER_LOAD_TIMEOUT" envDefault:"10s"`
	AppearanceTimeout    time.Duration `env:"APPEARANCE_TIMEOUT" envDefault:"5s"`
	CharacterAutoLoad    bool          `env:"CHARACTER_AUTO_LOAD" envDefault:"true"`

	ReceiptLogSize       int           `env:"RECEIPT_LOG_SIZE" envDefault:"50"`
	NetworkRetryAttempts int           `env:"NETWORK_RETRY_ATTEMPTS" envDefault:"10"`
	NetworkRetryDelay    time.Duration `env:"NETWORK_RETRY_DELAY" envDefault:"2s"`

	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HoldOpenOnShutdown *bool         `env:"HOLD_OPEN_ON_SHUTDOWN"`

	// Developers may run moderation commands in production
	Developers []int64 `env:"DEVELOPERS" envSeparator:","`
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads the configuration from the given variables only
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that the parser cannot
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL required when STORAGE_TYPE=%s", StorageRedis)
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.ReceiptLogSize <= 0 {
		return fmt.Errorf("RECEIPT_LOG_SIZE must be positive, got %d", c.ReceiptLogSize)
	}
	if c.RecordLockTTL <= 0 {
		return fmt.Errorf("RECORD_LOCK_TTL must be positive, got %s", c.RecordLockTTL)
	}
	return nil
}

// Env returns the platform environment the shard runs against
func (c Config) Env() model.Environment {
	return model.ParseEnvironment(c.Environment)
}

// HoldOpen reports whether shutdown waits for every session to finish
// tearing down. Unless set explicitly it is on outside development.
func (c Config) HoldOpen() bool {
	if c.HoldOpenOnShutdown != nil {
		return *c.HoldOpenOnShutdown
	}
	return c.Env() != model.EnvironmentDevelopment
}

// IsDeveloper reports whether the user is allowed to run moderation
// commands. Everyone is in development.
func (c Config) IsDeveloper(id model.UserID) bool {
	if c.Env() == model.EnvironmentDevelopment {
		return true
	}
	return slices.Contains(c.Developers, int64(id))
}
