// Package config loads runtime settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	// Telegram
	BotToken   string
	WebhookURL string
	BotPort    string

	// Overpass
	OverpassURL       string
	OverpassUserAgent string
	OverpassTimeout   time.Duration
	OverpassAttempts  int

	// Weather (CWA open data)
	CWAKey string

	// Vision (generative model endpoint)
	VisionEndpoint string
	VisionAPIKey   string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string

	Environment string
	LogLevel    string
}

// Load loads configuration from environment variables.
// Required: TELEGRAM_BOT_TOKEN. Everything else has a default or is
// optional (empty CWA/vision/redis/database settings disable the
// corresponding feature).
func Load() Config {
	return Config{
		BotToken:   envRequired("TELEGRAM_BOT_TOKEN"),
		WebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
		BotPort:    envOr("BOT_PORT", "8081"),

		OverpassURL:       envOr("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassUserAgent: envOr("OVERPASS_USER_AGENT", "pawpoint/1.0 (contact: ops@pawpoint.app)"),
		OverpassTimeout:   envDuration("OVERPASS_TIMEOUT", 45*time.Second),
		OverpassAttempts:  envInt("OVERPASS_MAX_ATTEMPTS", 6),

		CWAKey: os.Getenv("CWA_KEY"),

		VisionEndpoint: os.Getenv("VISION_ENDPOINT"),
		VisionAPIKey:   os.Getenv("VISION_API_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
	}
}

// Validate checks that all required configuration is present and valid.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.OverpassAttempts < 1 {
		return fmt.Errorf("OVERPASS_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("WARNING: %s is not set. This is required in production.\n", key)
	}
	return value
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
