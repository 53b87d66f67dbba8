package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Environment variable names for overrides.
const (
	EnvConfig      = "STAR_CONFIG"
	EnvBaseURL     = "STAR_URL"
	EnvAnonKey     = "STAR_ANON_KEY"
	EnvSessionPath = "STAR_SESSION_FILE"
	EnvCachePath   = "STAR_CACHE_FILE"
	EnvLogLevel    = "STAR_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables. They sit
// between the config file and CLI flags in precedence.
type EnvOverrides struct {
	ConfigPath  string `env:"STAR_CONFIG"`
	BaseURL     string `env:"STAR_URL"`
	AnonKey     string `env:"STAR_ANON_KEY"`
	SessionPath string `env:"STAR_SESSION_FILE"`
	CachePath   string `env:"STAR_CACHE_FILE"`
	LogLevel    string `env:"STAR_LOG_LEVEL"`
}

// ReadEnvOverrides reads the override environment variables.
func ReadEnvOverrides() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return EnvOverrides{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	return o, nil
}
