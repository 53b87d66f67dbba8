package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateanalytics/star-go/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests set
// globals AFTER newRootCmd() returns, or go through cmd.SetArgs + Execute.

// --- buildLogger tests ---

func saveFlagState(t *testing.T) {
	t.Helper()

	oldVerbose := flagVerbose
	oldQuiet := flagQuiet

	t.Cleanup(func() {
		flagVerbose = oldVerbose
		flagQuiet = oldQuiet
	})

	flagVerbose = false
	flagQuiet = false
}

func TestBuildLogger_Default(t *testing.T) {
	saveFlagState(t)

	logger := buildLogger(config.DefaultConfig())

	// Default level is Info.
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_ConfigLevels(t *testing.T) {
	saveFlagState(t)

	tests := []struct {
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LogLevel = tc.level

			logger := buildLogger(cfg)

			assert.True(t, logger.Handler().Enabled(context.Background(), tc.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tc.disabled))
		})
	}
}

func TestBuildLogger_VerboseOverridesConfig(t *testing.T) {
	saveFlagState(t)

	cfg := config.DefaultConfig()
	cfg.LogLevel = "error"
	flagVerbose = true

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverridesConfig(t *testing.T) {
	saveFlagState(t)

	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"
	flagQuiet = true

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{
		"login", "signup", "logout", "whoami", "recover",
		"get", "insert", "update", "delete", "upsert",
		"docs", "pull",
	}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "json", "verbose", "quiet"} {
		flag := cmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_DocsSubcommands(t *testing.T) {
	cmd := newRootCmd()

	docsSub, _, err := cmd.Find([]string{"docs"})
	require.NoError(t, err)
	require.Equal(t, "docs", docsSub.Name())

	expectedSubs := []string{"get", "put", "upload", "sign", "url", "push"}
	for _, name := range expectedSubs {
		found := false

		for _, sub := range docsSub.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected docs subcommand %q not found", name)
	}
}
