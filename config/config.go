/*
config.go - Server configuration

PURPOSE:

	Loads configuration from (in order of precedence) environment variables,
	an optional config file, and built-in defaults. Environment variables use
	the BENEFIT_ prefix: BENEFIT_PORT, BENEFIT_DB_PATH, ...

CONFIG FILE:

	Optional benefit.yaml in the working directory or /etc/benefit/.
	Missing file is not an error; defaults apply.

KEYS:

	port                 HTTP port (default 8080)
	db_path              SQLite path, ":memory:" for in-memory (default benefit.db)
	log_level            debug|info|warn|error (default info)
	lock_timeout         per-key lock acquisition bound (default 5s)
	freeze_week_limit    max freezes per employee per ISO week (default 5)
	low_budget_threshold remaining fraction that flags low budget (default 0.2)
	sweep_interval       delivery sweep period (default 1h)
	sweep_enabled        run the background sweeper (default true)
	sweep_companies      company ids the sweeper settles (default [demo-co])

SEE ALSO:
  - cmd/server/main.go: consumer
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server settings.
type Config struct {
	Port     int    `mapstructure:"port"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	FreezeWeekLimit    int           `mapstructure:"freeze_week_limit"`
	LowBudgetThreshold float64       `mapstructure:"low_budget_threshold"`

	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepEnabled   bool          `mapstructure:"sweep_enabled"`
	SweepCompanies []string      `mapstructure:"sweep_companies"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "benefit.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("lock_timeout", 5*time.Second)
	v.SetDefault("freeze_week_limit", 5)
	v.SetDefault("low_budget_threshold", 0.2)
	v.SetDefault("sweep_interval", time.Hour)
	v.SetDefault("sweep_enabled", true)
	v.SetDefault("sweep_companies", []string{"demo-co"})

	v.SetConfigName("benefit")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/benefit/")

	v.SetEnvPrefix("BENEFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.FreezeWeekLimit < 1 {
		return nil, fmt.Errorf("freeze_week_limit must be at least 1")
	}
	if cfg.LowBudgetThreshold < 0 || cfg.LowBudgetThreshold > 1 {
		return nil, fmt.Errorf("low_budget_threshold must be in [0, 1]")
	}
	return &cfg, nil
}

// SlogLevel maps the configured log level to slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
