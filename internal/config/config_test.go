package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DLENS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DLENS_PATHS_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8745, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.License.SyncInterval)
	assert.Equal(t, 7, cfg.License.GracePeriodDays)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Paths.CacheFile)
	assert.NotEmpty(t, cfg.Paths.KeyFile)
	assert.NotEmpty(t, cfg.Paths.StateFile)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "dlens.yaml")
	content := `
server:
  port: 9100
license:
  server_url: "https://licenses.example.com"
  sync_interval: 30m
  grace_period_days: 14
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	t.Setenv("DLENS_CONFIG_FILE", configFile)
	t.Setenv("DLENS_PATHS_CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://licenses.example.com", cfg.License.ServerURL)
	assert.Equal(t, 30*time.Minute, cfg.License.SyncInterval)
	assert.Equal(t, 14, cfg.License.GracePeriodDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "dlens.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("server:\n  port: 9100\n"), 0644))

	t.Setenv("DLENS_CONFIG_FILE", configFile)
	t.Setenv("DLENS_PATHS_CONFIG_DIR", dir)
	t.Setenv("DLENS_SERVER_PORT", "9200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad server url", func(c *Config) { c.License.ServerURL = "not a url" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"grace period negative", func(c *Config) { c.License.GracePeriodDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DLENS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
			t.Setenv("DLENS_PATHS_CONFIG_DIR", t.TempDir())

			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetPathsLayout(t *testing.T) {
	base := t.TempDir()
	paths, err := GetPaths(base)
	require.NoError(t, err)

	assert.Equal(t, base, paths.ConfigDir)
	assert.Equal(t, filepath.Join(base, "secure"), paths.SecureDir)
	assert.Equal(t, filepath.Join(base, "license_cache.dat"), paths.CacheFile)
	assert.Equal(t, filepath.Join(base, "secure", "machine.key"), paths.KeyFile)
	assert.Equal(t, filepath.Join(base, "license_state.json"), paths.StateFile)
}

func TestEnsureDirsPermissions(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "dlens")
	paths, err := GetPaths(base)
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())

	info, err := os.Stat(paths.SecureDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, FileExists(filepath.Join(dir, "nope")))

	file := filepath.Join(dir, "yes")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
}
