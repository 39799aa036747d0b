package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setCreds(t *testing.T) {
	t.Setenv("SOURCE_APP_KEY", "sk")
	t.Setenv("SOURCE_APP_SECRET", "ss")
	t.Setenv("PROVIDER_APP_KEY", "pk")
	t.Setenv("PROVIDER_APP_SECRET", "ps")
}

func TestLoadDefaults(t *testing.T) {
	setCreds(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.FanOut)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.NotNil(t, cfg.ContinueOnError)
	require.True(t, *cfg.ContinueOnError)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("SOURCE_APP_KEY", "")
	t.Setenv("SOURCE_APP_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	setCreds(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	data := []byte("fanOut: 12\nsafetyStock: 4\nskuMappings:\n  SRC-1: PROV-1\ncacheTTL: 90s\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("ENGINE_CONFIG", path)
	t.Setenv("SAFETY_STOCK", "7") // env wins over file

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 12, cfg.FanOut)
	require.Equal(t, 7, cfg.SafetyStock)
	require.Equal(t, 90*time.Second, cfg.CacheTTL)
	require.Equal(t, "PROV-1", cfg.SKUMappings["SRC-1"])
}

func TestLoadBadFile(t *testing.T) {
	setCreds(t)
	t.Setenv("ENGINE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
