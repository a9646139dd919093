package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the process settings read from the environment.
type Config struct {
	Port           string
	DBConnStr      string
	MaxConcurrency int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Load reads settings from a .env file (when present) and the environment.
// The database connection string can be given whole via DATABASE_URL or
// assembled from the DB_* variables.
func Load() Config {
	// a missing .env file is fine; environment variables still apply
	_ = godotenv.Load()

	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DBConnStr:      os.Getenv("DATABASE_URL"),
		MaxConcurrency: envIntOr("MAX_CONCURRENCY", 0),
		RetryBaseDelay: envDurationOr("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:  envDurationOr("RETRY_MAX_DELAY", 30*time.Second),
	}
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = connStrFromParts()
	}
	return cfg
}

func connStrFromParts() string {
	username := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	if username == "" || password == "" || host == "" || port == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		username, password, host, port, name)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
