package redis

import "time"

// Config holds Redis connection and key layout settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// KeyPrefix namespaces every key; shards sharing records must agree on it
	KeyPrefix string

	PoolSize     int
	MinIdleConns int

	// RecordTTL expires idle records; zero keeps them forever
	RecordTTL time.Duration
}

// DefaultConfig returns the configuration for a local Redis
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		KeyPrefix:    "liveshard",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}
