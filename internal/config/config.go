// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/olps/internal/modules/selection"
	"github.com/aristath/olps/internal/scheduler"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for the selection database (always absolute)
	LogLevel          string
	Port              int
	DevMode           bool
	Beta              float64
	Solver            string
	MaxIterations     int
	Tolerance         float64
	Fallback          string
	Lookback          int
	RebalanceSchedule string   // cron expression, seconds optional, or a descriptor like "@daily"; empty disables the job
	Universe          []string // assets rebalanced by the scheduled job; empty = every stored asset
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("OLPS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Beta:              getEnvAsFloat("FTRL_BETA", selection.DefaultBeta),
		Solver:            getEnv("OLPS_SOLVER", string(selection.DefaultSolver)),
		MaxIterations:     getEnvAsInt("SOLVER_MAX_ITERATIONS", 5000),
		Tolerance:         getEnvAsFloat("SOLVER_TOLERANCE", 1e-10),
		Fallback:          getEnv("OLPS_FALLBACK", string(selection.FallbackAbort)),
		Lookback:          getEnvAsInt("OLPS_LOOKBACK", 0),
		RebalanceSchedule: getEnv("REBALANCE_SCHEDULE", ""),
		Universe:          getEnvAsList("OLPS_UNIVERSE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Beta < 0 {
		return fmt.Errorf("FTRL_BETA must be non-negative, got %v", c.Beta)
	}
	if _, err := selection.ParseSolverKind(c.Solver); err != nil {
		return fmt.Errorf("OLPS_SOLVER: %w", err)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("SOLVER_TOLERANCE must be positive, got %v", c.Tolerance)
	}
	if _, err := selection.ParseFallbackPolicy(c.Fallback); err != nil {
		return fmt.Errorf("OLPS_FALLBACK: %w", err)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("OLPS_LOOKBACK must be non-negative, got %d", c.Lookback)
	}
	if c.RebalanceSchedule != "" {
		if err := scheduler.ValidateSchedule(c.RebalanceSchedule); err != nil {
			return fmt.Errorf("REBALANCE_SCHEDULE: %w", err)
		}
	}
	return nil
}

// DatabasePath is the location of the selection database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "selection.db")
}

// ServiceConfig converts the solver settings for the selection service.
// Call Validate first; unparseable values fall back to defaults.
func (c *Config) ServiceConfig() selection.ServiceConfig {
	solver, err := selection.ParseSolverKind(c.Solver)
	if err != nil {
		solver = selection.DefaultSolver
	}
	fallback, err := selection.ParseFallbackPolicy(c.Fallback)
	if err != nil {
		fallback = selection.FallbackAbort
	}
	return selection.ServiceConfig{
		Beta:   c.Beta,
		Solver: solver,
		Settings: selection.SolverSettings{
			MaxIterations:   c.MaxIterations,
			Tolerance:       c.Tolerance,
			AcceptTolerance: selection.DefaultAcceptTolerance,
		},
		Fallback: fallback,
		Lookback: c.Lookback,
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
