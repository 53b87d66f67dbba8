package config

import (
	"os"
	"path/filepath"
)

// appDirName is the subdirectory under the user config dir.
const appDirName = "star"

// configDir returns the per-user directory for config, session, and cache
// files. Falls back to the working directory when the platform config dir
// cannot be determined.
func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return appDirName
	}

	return filepath.Join(base, appDirName)
}

// DefaultConfigPath is where the TOML config file lives by default.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}

// DefaultSessionPath is the default location of the persisted session.
func DefaultSessionPath() string {
	return filepath.Join(configDir(), "session-v1.json")
}

// DefaultCachePath is the default location of the offline snapshot cache.
func DefaultCachePath() string {
	return filepath.Join(configDir(), "snapshots.db")
}
