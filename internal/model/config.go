package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabaseConfig holds settings for the embedded store.
type DatabaseConfig struct {
	// Path is the SQLite database file location.
	Path string `mapstructure:"path" yaml:"path"`
}

// PurgeConfig holds settings for tombstone maintenance.
type PurgeConfig struct {
	// RetentionDays is how long a confirmed-synced tombstone is kept
	// before it becomes a purge candidate.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// IntervalSec is how often (in seconds) the scheduler runs a purge pass.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// SyncConfig holds settings for the local sync hooks.
type SyncConfig struct {
	// ChunkSize bounds how many bound parameters a single cascade
	// statement may carry. SQLite's historical floor is 999.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// QueryConfig holds settings for the sandboxed query executor.
type QueryConfig struct {
	// BudgetMS is the wall-clock budget for one sandboxed query.
	BudgetMS int `mapstructure:"budget_ms" yaml:"budget_ms"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Purge    PurgeConfig    `mapstructure:"purge" yaml:"purge"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Query    QueryConfig    `mapstructure:"query" yaml:"query"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/directgtd/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "directgtd", "config.yaml")
}

// DefaultDatabasePath returns the default SQLite file location,
// ~/.local/share/directgtd/directgtd.sqlite.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "directgtd.sqlite")
	}
	return filepath.Join(home, ".local", "share", "directgtd", "directgtd.sqlite")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Purge:    PurgeConfig{RetentionDays: 30, IntervalSec: 3600},
		Sync:     SyncConfig{ChunkSize: 500},
		Query:    QueryConfig{BudgetMS: 250},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("purge.retention_days", 30)
	v.SetDefault("purge.interval_sec", 3600)
	v.SetDefault("sync.chunk_size", 500)
	v.SetDefault("query.budget_ms", 250)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("purge", cfg.Purge)
	v.Set("sync", cfg.Sync)
	v.Set("query", cfg.Query)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
