// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir             string // Base directory for the results database (always absolute)
	LogLevel            string
	Port                int
	DevMode             bool
	DefaultPermutations int   // Candidate count for stochastic solves without an explicit setting
	DefaultSeed         int64 // Seed for stochastic solves without an explicit setting
	RunRetentionDays    int   // Stored runs older than this are pruned by the retention job
	PruneSchedule       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory: FOLIO_DATA_DIR, defaulting to ./data,
	// always resolved to an absolute path that exists.
	dataDir := getEnv("FOLIO_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("FOLIO_PORT", 8010),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DefaultPermutations: getEnvAsInt("FOLIO_PERMUTATIONS", 2000),
		DefaultSeed:         int64(getEnvAsInt("FOLIO_SEED", 42)),
		RunRetentionDays:    getEnvAsInt("FOLIO_RUN_RETENTION_DAYS", 90),
		PruneSchedule:       getEnv("FOLIO_PRUNE_SCHEDULE", "0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DefaultPermutations <= 0 {
		return fmt.Errorf("default permutations must be positive, got %d", c.DefaultPermutations)
	}
	if c.RunRetentionDays <= 0 {
		return fmt.Errorf("run retention days must be positive, got %d", c.RunRetentionDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
