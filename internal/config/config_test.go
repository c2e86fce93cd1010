package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2000, cfg.DefaultPermutations)
	assert.Equal(t, int64(42), cfg.DefaultSeed)
	assert.Equal(t, 90, cfg.RunRetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.PruneSchedule)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("FOLIO_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FOLIO_PERMUTATIONS", "5000")
	t.Setenv("FOLIO_SEED", "123")
	t.Setenv("FOLIO_RUN_RETENTION_DAYS", "7")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5000, cfg.DefaultPermutations)
	assert.Equal(t, int64(123), cfg.DefaultSeed)
	assert.Equal(t, 7, cfg.RunRetentionDays)
	assert.True(t, cfg.DevMode)
}

func TestValidateRejectsBadValues(t *testing.T) {
	assert.Error(t, (&Config{Port: 0, DefaultPermutations: 10, RunRetentionDays: 1}).Validate())
	assert.Error(t, (&Config{Port: 8010, DefaultPermutations: 0, RunRetentionDays: 1}).Validate())
	assert.Error(t, (&Config{Port: 8010, DefaultPermutations: 10, RunRetentionDays: 0}).Validate())
}

func TestBadEnvValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("FOLIO_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.Port)
}
