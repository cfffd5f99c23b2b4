// Package config loads application configuration from file, environment,
// and defaults, and wires the process-wide logger.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
}

// GitHubConfig holds API credentials and the repositories to track.
type GitHubConfig struct {
	Token        string   `mapstructure:"token"`
	Repositories []string `mapstructure:"repositories"`
	PerPage      int      `mapstructure:"per_page"`
}

// StorageConfig points at the local sqlite database.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SyncConfig tunes the incremental sync engine.
type SyncConfig struct {
	InitialLookbackDays int           `mapstructure:"initial_lookback_days"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RateLimitBuffer     int           `mapstructure:"rate_limit_buffer"`
	PageTimeout         time.Duration `mapstructure:"page_timeout"`
}

// AnalyticsConfig controls how the weekly series is derived.
type AnalyticsConfig struct {
	Timezone           string        `mapstructure:"timezone"`
	WeekStart          string        `mapstructure:"week_start"`
	MovingAverageWeeks int           `mapstructure:"moving_average_weeks"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	QueryChunkSize     int           `mapstructure:"query_chunk_size"`
}

// ReportConfig selects the default report shape.
type ReportConfig struct {
	// Mode is "combined" (one series over all repositories) or
	// "separate" (one series per repository).
	Mode string `mapstructure:"mode"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file, falling back to the
// default search paths and GMINOR_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gminor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/gminor")
		}
	}

	v.SetEnvPrefix("GMINOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// GITHUB_TOKEN is the conventional variable name; honor it when the
	// config file leaves the token empty.
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.per_page", 100)

	v.SetDefault("storage.db_path", "./data/gminor.db")

	v.SetDefault("sync.initial_lookback_days", 180)
	v.SetDefault("sync.max_workers", 4)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.rate_limit_buffer", 50)
	v.SetDefault("sync.page_timeout", "30s")

	v.SetDefault("analytics.timezone", "UTC")
	v.SetDefault("analytics.week_start", "monday")
	v.SetDefault("analytics.moving_average_weeks", 4)
	v.SetDefault("analytics.cache_ttl", "1h")
	v.SetDefault("analytics.query_chunk_size", 500)

	v.SetDefault("report.mode", "combined")

	v.SetDefault("log.level", "info")
}

// SetupLogger installs the process-wide slog handler at the given level.
// verbose forces debug regardless of the configured level.
func SetupLogger(level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
