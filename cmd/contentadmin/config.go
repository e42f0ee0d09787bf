package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/localnerve/contentdb/internal/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// settings maps each CLI flag to the environment variable config.Load reads.
var settings = []struct {
	flag  string
	env   string
	usage string
}{
	{"db-type", "DB_TYPE", "database type (mysql, mariadb, postgres, sqlite, sqlite-pure, sqlserver)"},
	{"db-host", "DB_HOST", "database host"},
	{"db-port", "DB_PORT", "database port"},
	{"db-database", "DB_DATABASE", "database name, or file path for sqlite"},
	{"db-user", "DB_APP_USER", "database user"},
	{"db-password", "DB_APP_PASSWORD", "database password"},
	{"redis-url", "REDIS_URL", "redis url"},
	{"lock-backend", "LOCK_BACKEND", "lease store (database, redis)"},
	{"history-retention", "HISTORY_RETENTION", "snapshots kept per page, 0 keeps all"},
	{"log-level", "LOG_LEVEL", "log level"},
}

func bindSettings(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, s := range settings {
		flags.String(s.flag, "", s.usage)
		key := strings.ToLower(s.env)
		if err := v.BindPFlag(key, flags.Lookup(s.flag)); err != nil {
			return err
		}
		if err := v.BindEnv(key, s.env); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig layers the optional config file, flags and environment over
// the service defaults. Explicit values are exported to the environment
// so config.Load applies its usual defaults and validation.
func loadConfig(v *viper.Viper, envFile, configFile string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, s := range settings {
		key := strings.ToLower(s.env)
		if value := v.GetString(key); value != "" {
			if err := os.Setenv(s.env, value); err != nil {
				return nil, err
			}
		}
	}
	return config.Load()
}
