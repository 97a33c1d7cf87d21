// Package config provides configuration management for the terminal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig `mapstructure:"trading"`
	Risk        RiskConfig    `mapstructure:"risk"`
	Feed        FeedConfig    `mapstructure:"feed"`
	Log         LogConfig     `mapstructure:"log"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode            string  `mapstructure:"mode"`             // "live", "paper"
	DefaultProduct  string  `mapstructure:"default_product"`  // MIS, CNC, NRML
	DefaultExchange string  `mapstructure:"default_exchange"` // nse_cm, bse_cm
	PaperCash       float64 `mapstructure:"paper_cash"`       // simulated funds
}

// RiskConfig holds the simulated risk limits and margin factors.
type RiskConfig struct {
	MaxPositionSize  int     `mapstructure:"max_position_size"`
	MaxOrderValue    float64 `mapstructure:"max_order_value"`
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss"`
	MISMarginFactor  float64 `mapstructure:"mis_margin_factor"`
	NRMLMarginFactor float64 `mapstructure:"nrml_margin_factor"`
}

// FeedConfig holds the live feed connection settings.
type FeedConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
	BufferSize        int           `mapstructure:"buffer_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Credentials holds broker API credentials.
type Credentials struct {
	Neo NeoCredentials `mapstructure:"neo"`
}

// NeoCredentials holds the Neo API login material.
type NeoCredentials struct {
	BaseURL      string `mapstructure:"base_url"`
	MobileNumber string `mapstructure:"mobile_number"`
	Password     string `mapstructure:"password"`
	MPIN         string `mapstructure:"mpin"`
	TOTPSecret   string `mapstructure:"totp_secret"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/neo-terminal"
	}
	return filepath.Join(home, ".config", "neo-terminal")
}

// Load loads configuration from the specified directory. If configDir
// is empty, the default config directory is used. Missing files fall
// back to defaults rather than failing.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.default_product", "MIS")
	v.SetDefault("trading.default_exchange", "nse_cm")
	v.SetDefault("trading.paper_cash", 1000000.0)
	v.SetDefault("risk.max_position_size", 10000)
	v.SetDefault("risk.max_order_value", 10000000.0)
	v.SetDefault("risk.max_daily_loss", 100000.0)
	v.SetDefault("risk.mis_margin_factor", 0.2)
	v.SetDefault("risk.nrml_margin_factor", 0.5)
	v.SetDefault("feed.reconnect_max_delay", 30*time.Second)
	v.SetDefault("feed.buffer_size", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEO_BASE_URL"); v != "" {
		cfg.Credentials.Neo.BaseURL = v
	}
	if v := os.Getenv("NEO_MOBILE_NUMBER"); v != "" {
		cfg.Credentials.Neo.MobileNumber = v
	}
	if v := os.Getenv("NEO_PASSWORD"); v != "" {
		cfg.Credentials.Neo.Password = v
	}
	if v := os.Getenv("NEO_MPIN"); v != "" {
		cfg.Credentials.Neo.MPIN = v
	}
	if v := os.Getenv("NEO_TOTP_SECRET"); v != "" {
		cfg.Credentials.Neo.TOTPSecret = v
	}
	if v := os.Getenv("NEO_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("NEO_TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be \"paper\" or \"live\", got %q", c.Trading.Mode)
	}
	if c.Trading.PaperCash < 0 {
		return fmt.Errorf("trading.paper_cash must not be negative")
	}
	if c.Risk.MaxPositionSize < 0 {
		return fmt.Errorf("risk.max_position_size must not be negative")
	}
	if c.Risk.MaxOrderValue < 0 {
		return fmt.Errorf("risk.max_order_value must not be negative")
	}
	if c.Risk.MaxDailyLoss < 0 {
		return fmt.Errorf("risk.max_daily_loss must not be negative")
	}
	if c.Risk.MISMarginFactor < 0 || c.Risk.MISMarginFactor > 1 {
		return fmt.Errorf("risk.mis_margin_factor must be in [0,1]")
	}
	if c.Risk.NRMLMarginFactor < 0 || c.Risk.NRMLMarginFactor > 1 {
		return fmt.Errorf("risk.nrml_margin_factor must be in [0,1]")
	}
	if c.Trading.Mode == "live" && c.Credentials.Neo.MobileNumber == "" {
		return fmt.Errorf("live mode requires neo credentials")
	}
	return nil
}

// IsPaperMode reports whether orders are simulated.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
