// Package config provides configuration management for the terminal core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"options-terminal/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig            `mapstructure:"engine"`
	Executor ExecutorConfig          `mapstructure:"executor"`
	Store    StoreConfig             `mapstructure:"store"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Brokers  map[string]BrokerConfig `mapstructure:"brokers"`
}

// BrokerConfig holds per-instance broker credentials, keyed by instance ID
// in the [brokers.<id>] config section.
type BrokerConfig struct {
	Kind      string `mapstructure:"kind"` // "kite" or "paper"
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	TokenPath string `mapstructure:"token_path"`
}

// EngineConfig holds risk engine configuration.
type EngineConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	KillSwitch     bool          `mapstructure:"kill_switch"`
}

// ExecutorConfig holds quick order executor configuration.
type ExecutorConfig struct {
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	DefaultProduct string        `mapstructure:"default_product"` // MIS, NRML
	RetryAttempts  int           `mapstructure:"retry_attempts"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-terminal"
	}
	return filepath.Join(home, ".config", "options-terminal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		// Missing file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.enabled", true)
	v.SetDefault("engine.interval", time.Second)
	v.SetDefault("engine.max_concurrency", 16)
	v.SetDefault("engine.kill_switch", false)

	v.SetDefault("executor.call_timeout", 10*time.Second)
	v.SetDefault("executor.default_product", "NRML")
	v.SetDefault("executor.retry_attempts", 2)

	v.SetDefault("store.db_path", filepath.Join(DefaultConfigDir(), "terminal.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "terminal.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMINAL_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("TERMINAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Engine.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive, got %s", c.Engine.Interval)
	}
	if c.Engine.MaxConcurrency <= 0 {
		return fmt.Errorf("engine.max_concurrency must be positive, got %d", c.Engine.MaxConcurrency)
	}
	if c.Executor.CallTimeout <= 0 {
		return fmt.Errorf("executor.call_timeout must be positive, got %s", c.Executor.CallTimeout)
	}
	switch c.Executor.DefaultProduct {
	case "MIS", "CNC", "NRML":
	default:
		return fmt.Errorf("executor.default_product must be MIS, CNC or NRML, got %q", c.Executor.DefaultProduct)
	}
	return nil
}

// LegDefaults are the fallback values applied to a pre-resolved per-leg risk
// configuration before the engine consumes it. The precedence hierarchy that
// builds the config lives upstream; this is the single default-application
// step for whatever it left unset.
type LegDefaults struct {
	Scope          models.ExitScope
	TrailStep      float64
	ArmAfter       float64
	BreakevenAfter float64
}

// DefaultLegDefaults returns the standard leg defaults.
func DefaultLegDefaults() LegDefaults {
	return LegDefaults{
		Scope:          models.ScopeLeg,
		TrailStep:      0.05,
		ArmAfter:       0,
		BreakevenAfter: 0,
	}
}

// ApplyLegDefaults fills unset risk fields on a leg in one place.
func ApplyLegDefaults(leg *models.Leg, d LegDefaults) {
	if leg.Scope == "" {
		leg.Scope = d.Scope
	}
	if leg.Trailing.Enabled {
		if leg.Trailing.Step <= 0 {
			leg.Trailing.Step = d.TrailStep
		}
		if leg.Trailing.ArmAfter < 0 {
			leg.Trailing.ArmAfter = d.ArmAfter
		}
		if leg.Trailing.BreakevenAfter < 0 {
			leg.Trailing.BreakevenAfter = d.BreakevenAfter
		}
	}
}
