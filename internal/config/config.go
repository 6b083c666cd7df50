package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the errdeck server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Webhook   WebhookConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// WebhookConfig points notifications at an external receiver. With an empty
// URL, notification decisions are logged instead of dispatched.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// AdminConfig guards the operator endpoints. TokenHash is a bcrypt hash of
// the admin bearer token.
type AdminConfig struct {
	TokenHash string
}

// RateLimitConfig bounds per-credential ingestion. Zero disables limiting.
type RateLimitConfig struct {
	PerMinute int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ERRDECK_PORT", 8080),
			Env:  envString("ERRDECK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("ERRDECK_WEBHOOK_URL"),
			Timeout: envDuration("ERRDECK_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("ERRDECK_ADMIN_TOKEN_HASH"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("ERRDECK_RATE_LIMIT_PER_MINUTE", 120),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Webhook.URL != "" &&
		!strings.HasPrefix(c.Webhook.URL, "http://") && !strings.HasPrefix(c.Webhook.URL, "https://") {
		return fmt.Errorf("ERRDECK_WEBHOOK_URL must start with http:// or https://, got %q", c.Webhook.URL)
	}

	if c.Admin.TokenHash == "" {
		return fmt.Errorf("ERRDECK_ADMIN_TOKEN_HASH is required")
	}

	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("ERRDECK_RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimit.PerMinute)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
