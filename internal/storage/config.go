package storage

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Driver selects the storage backend
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverSQLite Driver = "sqlite"
	DriverDynamo Driver = "dynamo"
)

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
)

// Config holds storage configuration for all drivers
type Config struct {
	Driver     Driver
	SQLitePath string
	Dynamo     DynamoConfig
}

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode          DynamoMode
	Endpoint      string // for local mode
	Region        string
	ShiftsTable   string
	BreaksTable   string
	SettingsTable string
	RequestsTable string
	BalancesTable string
	WarningsTable string
}

// LoadConfig loads storage config from environment
func LoadConfig() Config {
	driver := Driver(getEnv("STORE_DRIVER", "memory"))
	if driver != DriverSQLite && driver != DriverDynamo {
		driver = DriverMemory
	}

	mode := DynamoMode(getEnv("DYNAMO_MODE", "local"))
	if mode != DynamoModeAWS {
		mode = DynamoModeLocal
	}

	return Config{
		Driver:     driver,
		SQLitePath: getEnv("SQLITE_PATH", "breakroster.db"),
		Dynamo: DynamoConfig{
			Mode:          mode,
			Endpoint:      getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
			Region:        getEnv("DYNAMO_REGION", "eu-central-1"),
			ShiftsTable:   getEnv("DYNAMO_SHIFTS_TABLE", "breakroster-shifts"),
			BreaksTable:   getEnv("DYNAMO_BREAKS_TABLE", "breakroster-breaks"),
			SettingsTable: getEnv("DYNAMO_SETTINGS_TABLE", "breakroster-settings"),
			RequestsTable: getEnv("DYNAMO_REQUESTS_TABLE", "breakroster-requests"),
			BalancesTable: getEnv("DYNAMO_BALANCES_TABLE", "breakroster-balances"),
			WarningsTable: getEnv("DYNAMO_WARNINGS_TABLE", "breakroster-warnings"),
		},
	}
}

// NewStore creates the store named by the config. The memory driver is the
// default and needs no external services.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case DriverDynamo:
		return NewDynamoDBStore(ctx, cfg.Dynamo, logger)
	default:
		logger.Info().Msg("using in-memory store, data will not survive restarts")
		return NewMemoryStore(), nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
