package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// RulesPath points at the YAML rule set; the file is watched and
	// hot-reloaded on change.
	RulesPath string

	// SweepSchedule is a cron spec for the invalidation sweep; empty
	// leaves the sweep disabled. SweepHorizon is days per pass.
	SweepSchedule string
	SweepHorizon  int

	// RateLimit is mutations per second allowed per client, RateBurst the
	// short-term burst on top.
	RateLimit float64
	RateBurst int

	ShutdownTimeout time.Duration

	Store storage.Config
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RulesPath:      getEnv("RULES_PATH", "rules.yaml"),
		SweepSchedule:  getEnv("SWEEP_SCHEDULE", ""),
		Store:          storage.LoadConfig(),
	}

	sweepHorizon, err := strconv.Atoi(getEnv("SWEEP_HORIZON", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_HORIZON: %w", err)
	}
	config.SweepHorizon = sweepHorizon

	rateLimit, err := strconv.ParseFloat(getEnv("RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	config.RateLimit = rateLimit

	rateBurst, err := strconv.Atoi(getEnv("RATE_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_BURST: %w", err)
	}
	config.RateBurst = rateBurst

	shutdownTimeout, err := strconv.Atoi(getEnv("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	config.ShutdownTimeout = time.Duration(shutdownTimeout) * time.Second

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
