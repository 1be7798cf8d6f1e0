package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig
	Storage       StorageConfig
	Worker        WorkerConfig
	Import        ImportConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	RunMigrations   bool
}

type StorageConfig struct {
	// Backend is "local" or "gcs".
	Backend   string
	LocalDir  string
	GCSBucket string
	GCSPrefix string
}

type WorkerConfig struct {
	Concurrency    int
	JobsPerSecond  float64
	Burst          int
	QueueSize      int
	SweepSchedule  string
	OrphanAfter    time.Duration
	SweepBatchSize int
	JobTimeout     time.Duration
}

type ImportConfig struct {
	MaxStoredErrors int
	MaxFileSize     int64
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvAsInt("POSTGRES_PORT", 5469),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:        getEnv("POSTGRES_DB", "finance-dev"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:        getEnvAsInt("POSTGRES_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("POSTGRES_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("POSTGRES_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("POSTGRES_MAX_CONN_IDLE_TIME", 10*time.Minute),
			RunMigrations:   getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", "local"),
			LocalDir:  getEnv("STORAGE_LOCAL_DIR", "./data/imports"),
			GCSBucket: getEnv("STORAGE_GCS_BUCKET", ""),
			GCSPrefix: getEnv("STORAGE_GCS_PREFIX", "imports"),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
			JobsPerSecond:  getEnvAsFloat("WORKER_JOBS_PER_SECOND", 5),
			Burst:          getEnvAsInt("WORKER_BURST", 5),
			QueueSize:      getEnvAsInt("WORKER_QUEUE_SIZE", 100),
			SweepSchedule:  getEnv("WORKER_SWEEP_SCHEDULE", "@every 5m"),
			OrphanAfter:    getEnvAsDuration("WORKER_ORPHAN_AFTER", 15*time.Minute),
			SweepBatchSize: getEnvAsInt("WORKER_SWEEP_BATCH_SIZE", 50),
			JobTimeout:     getEnvAsDuration("WORKER_JOB_TIMEOUT", 10*time.Minute),
		},
		Import: ImportConfig{
			MaxStoredErrors: getEnvAsInt("IMPORT_MAX_STORED_ERRORS", 100),
			MaxFileSize:     int64(getEnvAsInt("IMPORT_MAX_FILE_SIZE", 10<<20)),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("STORAGE_GCS_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Worker.Concurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Import.MaxStoredErrors < 1 {
		return errors.New("IMPORT_MAX_STORED_ERRORS must be at least 1")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
