package cli

import (
	"os"
	"strconv"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	// Executor is sent as the developer id on moderation commands
	Executor int64
	Output   string
	Verbose  bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	executor, _ := strconv.ParseInt(os.Getenv("LIVESHARD_EXECUTOR"), 10, 64)
	return &Config{
		ServerURL: getEnvOrDefault("LIVESHARD_SERVER", "http://localhost:8080"),
		Executor:  executor,
		Output:    "text",
		Verbose:   false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
