package config

import (
	"os"
	"testing"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/storage"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.RulesPath != "rules.yaml" {
					t.Errorf("expected rules.yaml, got %s", cfg.RulesPath)
				}
				if cfg.SweepSchedule != "" {
					t.Errorf("expected sweep disabled by default, got %q", cfg.SweepSchedule)
				}
				if cfg.SweepHorizon != 7 {
					t.Errorf("expected sweep horizon 7, got %d", cfg.SweepHorizon)
				}
				if cfg.ShutdownTimeout != 30*time.Second {
					t.Errorf("expected shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
				}
				if cfg.Store.Driver != storage.DriverMemory {
					t.Errorf("expected memory store default, got %s", cfg.Store.Driver)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":             "9000",
				"LOG_LEVEL":        "debug",
				"RULES_PATH":       "/etc/breakroster/rules.yaml",
				"SWEEP_SCHEDULE":   "@every 30m",
				"SWEEP_HORIZON":    "14",
				"RATE_LIMIT":       "2.5",
				"RATE_BURST":       "4",
				"SHUTDOWN_TIMEOUT": "5",
				"ALLOWED_ORIGINS":  "http://example.com, http://test.com",
				"STORE_DRIVER":     "sqlite",
				"SQLITE_PATH":      "/tmp/roster.db",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.RulesPath != "/etc/breakroster/rules.yaml" {
					t.Errorf("unexpected rules path %s", cfg.RulesPath)
				}
				if cfg.SweepSchedule != "@every 30m" || cfg.SweepHorizon != 14 {
					t.Errorf("unexpected sweep config %q/%d", cfg.SweepSchedule, cfg.SweepHorizon)
				}
				if cfg.RateLimit != 2.5 || cfg.RateBurst != 4 {
					t.Errorf("unexpected rate config %v/%d", cfg.RateLimit, cfg.RateBurst)
				}
				if cfg.ShutdownTimeout != 5*time.Second {
					t.Errorf("expected shutdown timeout 5s, got %v", cfg.ShutdownTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("expected trimmed origins, got %v", cfg.AllowedOrigins)
				}
				if cfg.Store.Driver != storage.DriverSQLite || cfg.Store.SQLitePath != "/tmp/roster.db" {
					t.Errorf("unexpected store config %+v", cfg.Store)
				}
			},
		},
		{
			name: "invalid SWEEP_HORIZON",
			env: map[string]string{
				"SWEEP_HORIZON": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid RATE_LIMIT",
			env: map[string]string{
				"RATE_LIMIT": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid SHUTDOWN_TIMEOUT",
			env: map[string]string{
				"SHUTDOWN_TIMEOUT": "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Load config
			cfg, err := Load()

			// Check error
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Run custom checks
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
