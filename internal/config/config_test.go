package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocoder.BaseURL)
	assert.True(t, cfg.Geocoder.Enabled)
	assert.Equal(t, "roofing_rules.yaml", cfg.Rules.Path)
	assert.Equal(t, 5, cfg.Sweep.IntervalMinutes)
	assert.Equal(t, 60, cfg.Sweep.FailurePauseSecs)
	assert.Equal(t, 30, cfg.Sweep.BatchRetryPauseSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PERMIT_STORE_DRIVER", "sqlite")
	t.Setenv("PERMIT_STORE_DATABASE_URL", "permits.db")
	t.Setenv("PERMIT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "permits.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_BadLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "console"}))
}
