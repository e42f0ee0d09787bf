package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends
const (
	LockBackendDatabase = "database"
	LockBackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType               string // mysql, postgres, sqlite, sqlite-pure, sqlserver
	DBHost               string
	DBPort               string
	DBDatabase           string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Authorizer configuration, optional. Without it identity comes from
	// trusted gateway headers.
	AuthzURL      string
	AuthzClientID string

	// Redis, optional. Required for the redis lock backend and change events.
	RedisURL            string
	RedisChangesChannel string

	// Content engine
	LockBackend      string
	LockTTL          time.Duration
	LockMaxTTL       time.Duration
	RequireLock      bool
	HistoryRetention int // 0 keeps every version
	SweepInterval    time.Duration
	PageServiceURL   string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads a .env file into the process environment when path is set.
// Values already present in the environment win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		DBType:               getEnv("DB_TYPE", "mysql"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBDatabase:           getEnv("DB_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisChangesChannel:  getEnv("REDIS_CHANGES_CHANNEL", "contentdb:changes"),
		LockBackend:          strings.ToLower(getEnv("LOCK_BACKEND", LockBackendDatabase)),
		LockTTL:              getEnvAsDuration("LOCK_TTL", 5*time.Minute),
		LockMaxTTL:           getEnvAsDuration("LOCK_MAX_TTL", 30*time.Minute),
		RequireLock:          getEnvAsBool("REQUIRE_LOCK", true),
		HistoryRetention:     getEnvAsInt("HISTORY_RETENTION", 100),
		SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 10*time.Minute),
		PageServiceURL:       getEnv("PAGE_SERVICE_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and cross-field constraints
func (cfg *Config) Validate() error {
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	if !cfg.IsSQLite() && cfg.DBAppUser == "" {
		return fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.AuthzURL != "" && cfg.AuthzClientID == "" {
		return fmt.Errorf("AUTHZ_CLIENT_ID is required when AUTHZ_URL is set")
	}
	switch cfg.LockBackend {
	case LockBackendDatabase:
	case LockBackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND: %s", cfg.LockBackend)
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if cfg.LockMaxTTL < cfg.LockTTL {
		return fmt.Errorf("LOCK_MAX_TTL must not be less than LOCK_TTL")
	}
	if cfg.HistoryRetention < 0 {
		return fmt.Errorf("HISTORY_RETENTION must not be negative")
	}
	return nil
}

// IsSQLite reports whether the configured database is a SQLite file
func (cfg *Config) IsSQLite() bool {
	return cfg.DBType == "sqlite" || cfg.DBType == "sqlite-pure"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool accepts anything strconv.ParseBool does
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
