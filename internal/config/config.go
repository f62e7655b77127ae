// Package config provides configuration management for the screening
// application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

// Config holds all application configuration.
type Config struct {
	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`

	Scan    ScanConfig          `mapstructure:"scan"`
	Filters models.FilterParams `mapstructure:"filters"`
	Data    DataConfig          `mapstructure:"data"`
	Tracker TrackerConfig       `mapstructure:"tracker"`
	Web     WebConfig           `mapstructure:"web"`
}

// DataConfig holds market-data API credentials.
type DataConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// ScanConfig holds screening-run configuration.
type ScanConfig struct {
	Tickers       []string `mapstructure:"tickers"`
	TargetCapital float64  `mapstructure:"target_capital"`
	RiskFreeRate  float64  `mapstructure:"risk_free_rate"`
	// FetchRatePerSec paces market-data requests.
	FetchRatePerSec float64 `mapstructure:"fetch_rate_per_sec"`
}

// TrackerConfig holds recommendation-store configuration.
type TrackerConfig struct {
	DBPath string `mapstructure:"db_path"`
	// RecencyWindowHours suppresses re-recommending a ticker that already
	// has an open recommendation created within the window.
	RecencyWindowHours int `mapstructure:"recency_window_hours"`
}

// WebConfig holds dashboard API configuration.
type WebConfig struct {
	Listen string `mapstructure:"listen"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	if dir := os.Getenv("DITM_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ditm-screener"
	}
	return filepath.Join(home, ".config", "ditm-screener")
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

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeTemplates(configDir); err != nil {
				return nil, fmt.Errorf("creating config templates: %w", err)
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config.toml: %w", err)
			}
		} else {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("scan.target_capital", 50000.0)
	v.SetDefault("scan.risk_free_rate", 0.04)
	v.SetDefault("scan.fetch_rate_per_sec", 2.0)
	v.SetDefault("filters.min_delta", 0.80)
	v.SetDefault("filters.max_delta", 0.95)
	v.SetDefault("filters.min_intrinsic_pct", 0.85)
	v.SetDefault("filters.min_dte", 90)
	v.SetDefault("filters.max_iv", 0.30)
	v.SetDefault("filters.max_spread_pct", 0.02)
	v.SetDefault("filters.min_oi", 500)
	v.SetDefault("tracker.db_path", filepath.Join(configDir, "recommendations.db"))
	v.SetDefault("tracker.recency_window_hours", 24)
	v.SetDefault("web.listen", "127.0.0.1:8090")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DITM_DATA_TOKEN"); v != "" {
		cfg.Data.Token = v
	}
	if v := os.Getenv("DITM_DB_PATH"); v != "" {
		cfg.Tracker.DBPath = v
	}
	if v := os.Getenv("DITM_LISTEN"); v != "" {
		cfg.Web.Listen = v
	}
}

// Validate validates the configuration. Malformed threshold sets fail
// fast rather than being silently defaulted.
func (c *Config) Validate() error {
	if err := c.Filters.Validate(); err != nil {
		return err
	}
	if c.Scan.TargetCapital <= 0 {
		return fmt.Errorf("target_capital must be positive")
	}
	if c.Scan.RiskFreeRate < 0 || c.Scan.RiskFreeRate > 0.20 {
		return fmt.Errorf("risk_free_rate %v out of range", c.Scan.RiskFreeRate)
	}
	if c.Tracker.RecencyWindowHours < 0 {
		return fmt.Errorf("recency_window_hours must be non-negative")
	}
	return nil
}
