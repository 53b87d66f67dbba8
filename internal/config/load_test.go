package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://proj.supabase.co"
anon_key = "anon-123"
log_level = "debug"

[demo]
enabled = true
email = "demo@example.com"
display_name = "Jon Doe Star"

[pull]
tables = ["moods", "calendar_events"]

[[pull.documents]]
bucket = "shared"
path = "focus/week.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co", cfg.BaseURL)
	assert.Equal(t, "anon-123", cfg.AnonKey)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Demo.Enabled)
	assert.Equal(t, []string{"moods", "calendar_events"}, cfg.Pull.Tables)
	require.Len(t, cfg.Pull.Documents, 1)
	assert.Equal(t, "shared", cfg.Pull.Documents[0].Bucket)
}

func TestLoad_UnknownKeyIsFatal(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://proj.supabase.co"
anon_key = "anon-123"
bas_url = "typo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "bas_url")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.SessionPath)
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://file.supabase.co"
anon_key = "file-key"
`)

	cfg, err := Resolve(EnvOverrides{
		ConfigPath: path,
		BaseURL:    "https://env.supabase.co",
		LogLevel:   "warn",
	}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "https://env.supabase.co", cfg.BaseURL)
	assert.Equal(t, "file-key", cfg.AnonKey)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	cliPath := writeConfig(t, `
base_url = "https://cli.supabase.co"
anon_key = "cli-key"
`)
	envPath := writeConfig(t, `
base_url = "https://env.supabase.co"
anon_key = "env-key"
`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, "https://cli.supabase.co", cfg.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"relative base url", func(c *Config) { c.BaseURL = "proj.supabase.co" }, "not an absolute URL"},
		{"trailing slash", func(c *Config) { c.BaseURL = "https://proj.supabase.co/" }, "must not end with a slash"},
		{"missing anon key", func(c *Config) { c.AnonKey = "" }, "anon_key is required"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{
			"document missing bucket",
			func(c *Config) { c.Pull.Documents = []DocumentRef{{Path: "x.json"}} },
			"bucket and path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = "https://proj.supabase.co"
			cfg.AnonKey = "anon"
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://env.supabase.co")
	t.Setenv(EnvAnonKey, "env-key")

	o, err := ReadEnvOverrides()
	require.NoError(t, err)
	assert.Equal(t, "https://env.supabase.co", o.BaseURL)
	assert.Equal(t, "env-key", o.AnonKey)
}
