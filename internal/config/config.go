// Package config resolves the effective client configuration from the
// three-layer override chain: config file -> environment -> CLI flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the TOML config file shape.
type Config struct {
	// BaseURL is the project base URL, e.g. "https://proj.supabase.co".
	BaseURL string `toml:"base_url"`
	// AnonKey is the static public API key sent with every request.
	AnonKey string `toml:"anon_key"`

	SessionPath string `toml:"session_path"`
	CachePath   string `toml:"cache_path"`
	LogLevel    string `toml:"log_level"`

	Demo DemoConfig `toml:"demo"`
	Pull PullConfig `toml:"pull"`
}

// DemoConfig enables the cosmetic demo identity for presentation
// deployments. Tokens are never altered by it.
type DemoConfig struct {
	Enabled     bool   `toml:"enabled"`
	Email       string `toml:"email"`
	DisplayName string `toml:"display_name"`
}

// PullConfig lists what `star pull` snapshots into the offline cache.
type PullConfig struct {
	Tables    []string      `toml:"tables"`
	Documents []DocumentRef `toml:"documents"`
}

// DocumentRef addresses one stored JSON document.
type DocumentRef struct {
	Bucket string `toml:"bucket"`
	Path   string `toml:"path"`
}

// DefaultConfig returns a Config with all defaults populated.
func DefaultConfig() *Config {
	return &Config{
		SessionPath: DefaultSessionPath(),
		CachePath:   DefaultCachePath(),
		LogLevel:    "info",
	}
}

// validLogLevels is what buildLogger understands.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the resolved config. BaseURL and AnonKey are the only
// hard requirements; everything else has a usable default.
func Validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("config: base_url is required (or set %s)", EnvBaseURL)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: base_url %q is not an absolute URL", cfg.BaseURL)
	}

	if strings.HasSuffix(cfg.BaseURL, "/") {
		return fmt.Errorf("config: base_url must not end with a slash")
	}

	if cfg.AnonKey == "" {
		return fmt.Errorf("config: anon_key is required (or set %s)", EnvAnonKey)
	}

	if cfg.LogLevel != "" && !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("config: unknown log_level %q (debug, info, warn, error)", cfg.LogLevel)
	}

	for _, d := range cfg.Pull.Documents {
		if d.Bucket == "" || d.Path == "" {
			return fmt.Errorf("config: pull documents need both bucket and path")
		}
	}

	return nil
}
