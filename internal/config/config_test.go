package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tokscale/tokscale/internal/paths"
)

// writeConfig writes a config.toml into a temp dir and returns the dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != 2 || cfg.Fetch.TimeoutSeconds != 30 {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := writeConfig(t, `
[pricing]
litellm_url = "http://localhost:9999/pricing.json"

[fetch]
retries = 5
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.LiteLLMURL != "http://localhost:9999/pricing.json" {
		t.Errorf("litellm_url = %q", cfg.Pricing.LiteLLMURL)
	}
	if cfg.Fetch.Retries != 5 {
		t.Errorf("retries = %d, want 5", cfg.Fetch.Retries)
	}
	// Unset fields keep their defaults.
	if cfg.Fetch.TimeoutSeconds != 30 {
		t.Errorf("timeout_seconds = %d, want 30", cfg.Fetch.TimeoutSeconds)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := writeConfig(t, `[pricing`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOKSCALE_CACHE_DIR", "/tmp/tokscale-test-cache")
	t.Setenv("TOKSCALE_RETRIES", "0")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")

	dir := writeConfig(t, `
[cache]
dir = "/from/file"

[fetch]
retries = 4

[pricing]
api_key = "sk-or-file"
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Dir != "/tmp/tokscale-test-cache" {
		t.Errorf("cache dir = %q, want env value", cfg.Cache.Dir)
	}
	// An explicit "0" overrides the file value, not just non-zero values.
	if cfg.Fetch.Retries != 0 {
		t.Errorf("retries = %d, want 0", cfg.Fetch.Retries)
	}
	if cfg.Pricing.APIKey != "sk-or-env" {
		t.Errorf("api_key = %q, want env value", cfg.Pricing.APIKey)
	}
}

func TestLoadDefaultsReadsNoFile(t *testing.T) {
	t.Setenv("TOKSCALE_RETRIES", "9")

	// A config.toml in the working directory must not leak in.
	dir := writeConfig(t, `
[fetch]
timeout_seconds = 1
`)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if cfg.Fetch.TimeoutSeconds != 30 {
		t.Errorf("timeout_seconds = %d, want default 30 (file must be ignored)", cfg.Fetch.TimeoutSeconds)
	}
	if cfg.Fetch.Retries != 9 {
		t.Errorf("retries = %d, want env value 9", cfg.Fetch.Retries)
	}
}

func TestDebugEnvRaisesLevel(t *testing.T) {
	t.Setenv("TOKSCALE_DEBUG", "true")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"zero timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"negative retries", func(c *Config) { c.Fetch.Retries = -1 }, "retries"},
		{"zero max size", func(c *Config) { c.Log.MaxSizeMB = 0 }, "max_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestFetchRetries(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.FetchRetries(); got != 2 {
		t.Errorf("FetchRetries = %d, want 2", got)
	}
	cfg.Fetch.Retries = 0
	if got := cfg.FetchRetries(); got != -1 {
		t.Errorf("FetchRetries = %d, want -1 for disabled", got)
	}
	cfg.Fetch.Retries = 7
	if got := cfg.FetchRetries(); got != 7 {
		t.Errorf("FetchRetries = %d, want 7", got)
	}
}
