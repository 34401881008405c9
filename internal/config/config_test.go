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
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.InDelta(t, 0.9, cfg.TargetRetention, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	assert.Contains(t, cfg.DatabaseDSN, "foreign_keys(1)")
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"--addr", "127.0.0.1:9999",
		"--log_level", "debug",
		"--target_retention", "0.85",
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.85, cfg.TargetRetention, 1e-9)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("REMEMO_LOG_FORMAT", "json")
	t.Setenv("REMEMO_ADDR", ":7070")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":7070", cfg.Addr)
}

func TestLoadFileAndPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rememo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":6060\"\nlog_level: warn\n"), 0o600))

	// File values apply when nothing overrides them.
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)

	// An explicit flag beats the file.
	cfg, err = Load([]string{"--config", path, "--addr", ":5050"})
	require.NoError(t, err)
	assert.Equal(t, ":5050", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load([]string{"--log_level", "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = Load([]string{"--target_retention", "1.5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
