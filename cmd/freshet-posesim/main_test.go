package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	path, err := parseArgs(nil)
	require.NoError(t, err)
	require.Equal(t, "posesim.toml", path)

	path, err = parseArgs([]string{"-config", "other.toml"})
	require.NoError(t, err)
	require.Equal(t, "other.toml", path)

	// A mistyped flag must be rejected, not silently ignored.
	_, err = parseArgs([]string{"-comfig", "other.toml"})
	require.Error(t, err)
}

func TestLoadConfig_defaultsAndOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "posesim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
channel = "pose-left"
sample_period_seconds = 0.02
accel_sigma = 2.5
seed = 99
samples = 500
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "pose-left", cfg.Channel)
	require.Equal(t, 0.02, cfg.PeriodSeconds)
	require.Equal(t, 2.5, cfg.AccelSigma)
	require.Equal(t, uint64(99), cfg.Seed)
	require.Equal(t, uint64(500), cfg.Samples)
}

func TestLoadConfig_rejectsNonPositivePeriod(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "posesim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
channel = "x"
sample_period_seconds = 0.0
`), 0o600))

	_, err := loadConfig(path)
	require.Error(t, err)
}
