package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/karta/internal/config"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "karta.db", cfg.Storage.DSN)
	assert.Equal(t, 250.0, cfg.Canvas.NeighborRadius)
	assert.Equal(t, 20.0, cfg.Canvas.MinDimension)
	assert.Equal(t, 400, cfg.Canvas.TransitionMS)
	assert.True(t, cfg.Canvas.PersistLastContext)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "karta.yaml")

	content := `
storage:
  backend: memory
canvas:
  neighbor_radius: 400
  persist_last_context: false
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 400.0, cfg.Canvas.NeighborRadius)
	assert.False(t, cfg.Canvas.PersistLastContext)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KARTA_STORAGE_DSN", "/tmp/other.db")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, kerr.HasCode(err, kerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "karta.yaml")

	content := `
storage:
  backend: "postgres"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: "sqlite"},
		Log:     config.LogConfig{Level: "loud", Format: "xml"},
	}

	errs := cfg.Validate()
	// dsn, level, format, radius, min dimension, screen size
	assert.Len(t, errs, 6)
}

func TestEngineOptions(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := cfg.EngineOptions()
	assert.Equal(t, 250.0, opts.NeighborRadius)
	assert.Equal(t, 400*time.Millisecond, opts.Transition)
	assert.Equal(t, 500*time.Millisecond, opts.ViewportTransition)
	assert.Equal(t, 1280.0, opts.ScreenWidth)
	assert.True(t, opts.PersistLastContext)
}
