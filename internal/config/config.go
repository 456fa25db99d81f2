package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port      string
	Env       string
	DataDir   string
	JWTSecret string

	// Optional backends
	DatabaseURL string // Postgres project store; SQLite is used when empty
	SQLitePath  string
	RedisURL    string // remote peer routing table and rate limiting

	MaintenanceInterval time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "3000"),
		Env:                 getEnv("ENV", "development"),
		DataDir:             getEnv("DATA_DIR", "./data"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          os.Getenv("SQLITE_PATH"),
		RedisURL:            os.Getenv("REDIS_URL"),
		MaintenanceInterval: getDuration("MAINTENANCE_INTERVAL", 30*time.Second),
	}

	// In production, require a real token secret
	if cfg.Env == "production" && os.Getenv("JWT_SECRET") == "" {
		panic("JWT_SECRET is required in production")
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

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
