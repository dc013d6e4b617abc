package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api-adresse.data.gouv.fr/search/", cfg.Geocode.BaseURL)
	assert.Equal(t, 10, cfg.Geocode.Concurrency)
	assert.Equal(t, []string{"Hotel de Ville de", "Mairie de"}, cfg.Geocode.Keywords)
	assert.True(t, cfg.Geocode.CacheEnabled)
	assert.Equal(t, "https://georisques.gouv.fr/api/v1/tri_zonage", cfg.Georisques.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Georisques.Timeout())
	assert.Equal(t, 2, cfg.Georisques.MaxAttempts)
	assert.Equal(t, 500, cfg.Georisques.BackoffMs)
	assert.Equal(t, "api", cfg.Georisques.Mode)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Overpass.Endpoint)
	assert.Equal(t, 2, cfg.Overpass.MaxParallel)
	assert.Equal(t, "iso_ht_03_01for_s_", cfg.Data.TRILayerPrefix)
	assert.Equal(t, []int{2023}, cfg.Data.Years)
	assert.Equal(t, "data/dvf-flood.db", cfg.Store.SQLitePath)
	assert.Equal(t, "output", cfg.Regression.OutputDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
geocode:
  concurrency: 4
  keywords: ["Mairie de"]
georisques:
  mode: local
data:
  years: [2021, 2022]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Geocode.Concurrency)
	assert.Equal(t, []string{"Mairie de"}, cfg.Geocode.Keywords)
	assert.Equal(t, "local", cfg.Georisques.Mode)
	assert.Equal(t, []int{2021, 2022}, cfg.Data.Years)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Georisques.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
store:
  sqlite_path: from-file.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DVFFLOOD_STORE_SQLITE_PATH", "from-env.db")
	t.Setenv("DVFFLOOD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Store.SQLitePath)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DVFFLOOD_GEORISQUES_TIMEOUT_SECS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Georisques.Timeout())
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("georisques:\n  mode: carrier-pigeon\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "georisques.mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := &Config{
		Geocode:    GeocodeConfig{Concurrency: 0},
		Georisques: GeorisquesConfig{Concurrency: 1, MaxAttempts: 2, Mode: "api"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.concurrency")

	cfg.Geocode.Concurrency = 10
	assert.NoError(t, cfg.Validate())

	cfg.Georisques.MaxAttempts = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
