// Package config provides configuration loading and defaults for tokscale.
//
// Configuration is loaded from a TOML file in the user's config directory,
// then overlaid with environment variables. The package covers pricing
// endpoint overrides, cache placement, fetch behavior, and logging with
// sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/tokscale/tokscale/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Pricing holds pricing data source settings.
	Pricing PricingConfig `toml:"pricing"`
	// Cache holds disk cache settings.
	Cache CacheConfig `toml:"cache"`
	// Fetch holds remote fetch settings.
	Fetch FetchConfig `toml:"fetch"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// PricingConfig holds settings for where pricing data is loaded from.
type PricingConfig struct {
	// LiteLLMURL overrides the default LiteLLM dataset endpoint.
	LiteLLMURL string `toml:"litellm_url,omitempty"`
	// OpenRouterBaseURL overrides the default OpenRouter models API root.
	OpenRouterBaseURL string `toml:"openrouter_base_url,omitempty"`
	// APIKey is the optional OpenRouter bearer token.
	APIKey string `toml:"api_key,omitempty"`
}

// CacheConfig holds disk cache settings.
type CacheConfig struct {
	// Dir overrides the cache directory. Empty selects the platform
	// user cache directory.
	Dir string `toml:"dir,omitempty"`
}

// FetchConfig holds remote fetch settings.
type FetchConfig struct {
	// TimeoutSeconds is the per-attempt request timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// Retries is the number of retries after the initial attempt.
	// Zero disables retrying.
	Retries int `toml:"retries"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level"`
	// File is an optional log file path; empty logs to stderr only.
	File string `toml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			Retries:        2,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Environment Overrides
// ///////////////////////////////////////////////

// envOverrides is the environment surface overlaid on the file config.
// Retries is a pointer so an explicit "0" can be told apart from unset.
type envOverrides struct {
	CacheDir string `env:"TOKSCALE_CACHE_DIR"`
	Retries  *int   `env:"TOKSCALE_RETRIES"`
	APIKey   string `env:"OPENROUTER_API_KEY"`
	Debug    bool   `env:"TOKSCALE_DEBUG"`
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if ov.CacheDir != "" {
		c.Cache.Dir = ov.CacheDir
	}
	if ov.Retries != nil {
		c.Fetch.Retries = *ov.Retries
	}
	if ov.APIKey != "" {
		c.Pricing.APIKey = ov.APIKey
	}
	if ov.Debug {
		c.Log.Level = "debug"
	}
	return nil
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from configDir/config.toml,
// then applies environment overrides. If the file doesn't exist, the
// defaults (plus environment) are returned.
func Load(configDir string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(configDir, paths.ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

// LoadDefaults returns the defaults with environment overrides applied,
// reading no file at all. Used when no config directory can be resolved.
func LoadDefaults() (*Config, error) {
	return finish(DefaultConfig())
}

// finish applies the environment overlay and validates.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be debug, info, warn, or error", c.Log.Level)
	}

	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0, got %d", c.Fetch.TimeoutSeconds)
	}

	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0, got %d", c.Fetch.Retries)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// FetchRetries translates the configured retry count into the fetch
// client's convention, where a negative value disables retries and zero
// selects the built-in default.
func (c *Config) FetchRetries() int {
	if c.Fetch.Retries == 0 {
		return -1
	}
	return c.Fetch.Retries
}
