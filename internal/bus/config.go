package bus

import (
	"os"
)

// Config holds invalidation bus configuration
type Config struct {
	// NATS connection settings
	URL      string
	Name     string
	User     string
	Password string

	// Subject carrying invalidation broadcasts
	Subject string
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() *Config {
	return &Config{
		URL:      getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		Name:     getEnvOrDefault("NATS_NAME", "talon"),
		User:     os.Getenv("NATS_USER"),
		Password: os.Getenv("NATS_PASSWORD"),
		Subject:  getEnvOrDefault("BUS_INVALIDATION_SUBJECT", "talon.cache.invalidate"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
