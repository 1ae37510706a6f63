package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"gobandits/internal"
	"gobandits/internal/errors"
)

// Store backends for the roster
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Log      LogConfig
	Store    StoreConfig
	Database DatabaseConfig
	Schedule ScheduleConfig
	Report   ReportConfig
	Server   ServerConfig
}

// LogConfig holds logging settings
type LogConfig struct {
	Level internal.LogLevel
}

// StoreConfig selects where the roster lives
type StoreConfig struct {
	Backend string
	// Roster is a file path for the file backend and a roster name for postgres.
	Roster string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// ScheduleConfig holds scheduler settings
type ScheduleConfig struct {
	// Seed 0 means time based.
	Seed int64
	// InverseIterations caps each posterior inversion.
	InverseIterations int
}

// ReportConfig holds Monte Carlo report settings
type ReportConfig struct {
	Trials  int
	Workers int
}

// ServerConfig holds read API settings
type ServerConfig struct {
	Port string
}

// Load reads .env (if present) and the environment, then validates the result
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from environment variables only
func FromEnv() (*Config, error) {
	config := &Config{
		Log: LogConfig{Level: internal.LogLevelInfo},
		Store: StoreConfig{
			Backend: getEnvOrDefault("BANDITS_STORE", StoreFile),
			Roster:  getEnvOrDefault("BANDITS_ROSTER", "bandits.json"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 4),
			ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Schedule: ScheduleConfig{
			Seed:              int64(getEnvIntOrDefault("BANDITS_SEED", 0)),
			InverseIterations: getEnvIntOrDefault("BANDITS_INVERSE_ITERATIONS", 100),
		},
		Report: ReportConfig{
			Trials:  getEnvIntOrDefault("BANDITS_REPORT_TRIALS", 2000),
			Workers: getEnvIntOrDefault("BANDITS_REPORT_WORKERS", 4),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, ok := internal.ParseLogLevel(raw)
		if !ok {
			return nil, errors.ConfigInvalid("LOG_LEVEL must be one of ERROR, WARN, INFO, DEBUG, TRACE")
		}
		config.Log.Level = level
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreFile, StorePostgres:
	default:
		return errors.ConfigInvalid("BANDITS_STORE must be file or postgres")
	}
	if c.Store.Backend == StorePostgres && c.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required for the postgres store")
	}
	if c.Store.Roster == "" {
		return errors.ConfigInvalid("BANDITS_ROSTER must not be empty")
	}
	if c.Schedule.InverseIterations <= 0 {
		return errors.ConfigInvalid("BANDITS_INVERSE_ITERATIONS must be positive")
	}
	if c.Report.Trials <= 0 {
		return errors.ConfigInvalid("BANDITS_REPORT_TRIALS must be positive")
	}
	if c.Report.Workers <= 0 {
		return errors.ConfigInvalid("BANDITS_REPORT_WORKERS must be positive")
	}
	return nil
}

// EffectiveSeed returns the configured seed, or a time based one when unset
func (s ScheduleConfig) EffectiveSeed() int64 {
	if s.Seed != 0 {
		return s.Seed
	}
	return time.Now().UnixNano()
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
