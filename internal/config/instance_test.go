package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureInstance_GeneratesAndPersistsID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := DefaultConfig()

	require.NoError(t, EnsureInstance(cfg, path, testLogger(t)))
	require.NotEmpty(t, cfg.Instance.ID)
	_, err := uuid.Parse(cfg.Instance.ID)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, cfg.Instance.ID, reloaded.Instance.ID)
}

func TestEnsureInstance_NoopWhenAlreadySet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Instance.ID = "22222222-2222-2222-2222-222222222222"

	require.NoError(t, EnsureInstance(cfg, filepath.Join(t.TempDir(), "config.toml"), testLogger(t)))
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", cfg.Instance.ID)
}
