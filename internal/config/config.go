package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port  string
	Env   string
	Store string // "memory", "sqlite" or "postgres"

	DatabaseURL string // postgres
	SQLitePath  string
	RedisURL    string // enables the replay guard when set

	WebhookTimeout time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, a durable store is required.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "3100"),
		Env:         getEnv("ENV", "development"),
		Store:       getEnv("STORE", "memory"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebhookTimeout = d
		}
	}

	if cfg.Env == "production" {
		if cfg.Store == "memory" {
			panic("STORE must be sqlite or postgres in production")
		}
		if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required with STORE=postgres")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
