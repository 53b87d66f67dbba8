package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values from command-line flags, the highest-precedence
// layer.
type CLIOverrides struct {
	ConfigPath string
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal: silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns the
// defaults, so environment-only setups work without a file on disk.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain (defaults -> config file -> env ->
// CLI) and validates the result.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays non-empty environment values onto the config.
func applyEnv(cfg *Config, env EnvOverrides) {
	if env.BaseURL != "" {
		cfg.BaseURL = env.BaseURL
	}

	if env.AnonKey != "" {
		cfg.AnonKey = env.AnonKey
	}

	if env.SessionPath != "" {
		cfg.SessionPath = env.SessionPath
	}

	if env.CachePath != "" {
		cfg.CachePath = env.CachePath
	}

	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
}
