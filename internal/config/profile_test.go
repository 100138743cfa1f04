package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfile_GeneratesAndPersistsID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := DefaultConfig()

	require.NoError(t, EnsureProfile(cfg, path, testLogger(t)))
	require.NotEmpty(t, cfg.Profile.ID)
	_, err := uuid.Parse(cfg.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, defaultProfileName, cfg.Profile.Name)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, cfg.Profile.ID, reloaded.Profile.ID)
}

func TestEnsureProfile_NoopWhenAlreadySet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profile.ID = "11111111-1111-1111-1111-111111111111"

	require.NoError(t, EnsureProfile(cfg, filepath.Join(t.TempDir(), "config.toml"), testLogger(t)))
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", cfg.Profile.ID)
}
