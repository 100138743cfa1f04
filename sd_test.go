package main

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewcsillag/notecove/internal/config"
)

func TestCLIIdentity_ParsesBothIDs(t *testing.T) {
	instanceID := uuid.New()
	profileID := uuid.New()

	cc := &CLIContext{Cfg: &config.Resolved{Config: &config.Config{
		Instance: config.InstanceConfig{ID: instanceID.String()},
		Profile:  config.ProfileConfig{ID: profileID.String()},
	}}}

	gotInstance, gotProfile, err := cliIdentity(cc)
	require.NoError(t, err)
	assert.Equal(t, instanceID, gotInstance)
	assert.Equal(t, profileID, gotProfile)
}

func TestCLIIdentity_ErrorsOnInvalidID(t *testing.T) {
	cc := &CLIContext{Cfg: &config.Resolved{Config: &config.Config{
		Instance: config.InstanceConfig{ID: "not-a-uuid"},
		Profile:  config.ProfileConfig{ID: uuid.New().String()},
	}}}

	_, _, err := cliIdentity(cc)
	assert.Error(t, err)
}

func TestDeriveAlias(t *testing.T) {
	cases := map[string]string{
		"/home/me/Notes":       "notes",
		"/home/me/My Notes!!":  "my-notes",
		"/home/me/!!!":         "sd",
		"/home/me/work-notes2": "work-notes2",
	}
	for path, want := range cases {
		assert.Equal(t, want, deriveAlias(path), "path %q", path)
	}
}

func TestResolveSDConfig_ReusesExistingEntryByPath(t *testing.T) {
	dir := t.TempDir()
	sdPath := filepath.Join(dir, "mynotes")
	cfgPath := filepath.Join(dir, "config.toml")

	cfg := config.DefaultConfig()
	existing := config.SDConfig{Path: sdPath, ID: uuid.New().String()}
	cfg.SDs["mynotes"] = existing

	cc := &CLIContext{Cfg: &config.Resolved{Config: cfg, ConfigPath: cfgPath}}

	got, alias, registered, err := resolveSDConfig(cc, sdPath)
	require.NoError(t, err)
	assert.False(t, registered)
	assert.Equal(t, "mynotes", alias)
	assert.Equal(t, existing.ID, got.ID)
}

func TestResolveSDConfig_RegistersNewEntry(t *testing.T) {
	dir := t.TempDir()
	sdPath := filepath.Join(dir, "fresh-notes")
	cfgPath := filepath.Join(dir, "config.toml")

	cfg := config.DefaultConfig()
	cc := &CLIContext{Cfg: &config.Resolved{Config: cfg, ConfigPath: cfgPath}}

	got, alias, registered, err := resolveSDConfig(cc, sdPath)
	require.NoError(t, err)
	assert.True(t, registered)
	assert.Equal(t, "fresh-notes", alias)
	assert.NotEmpty(t, got.ID)
	_, err = uuid.Parse(got.ID)
	assert.NoError(t, err)

	reloaded, err := config.Load(cfgPath, testLogger())
	require.NoError(t, err)
	assert.Equal(t, got.ID, reloaded.SDs["fresh-notes"].ID)
}

func TestResolveSDConfig_DedupesAliasCollision(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	cfg := config.DefaultConfig()
	cfg.SDs["notes"] = config.SDConfig{Path: filepath.Join(dir, "notes"), ID: uuid.New().String()}
	cc := &CLIContext{Cfg: &config.Resolved{Config: cfg, ConfigPath: cfgPath}}

	otherPath := filepath.Join(dir, "sub", "notes")
	_, alias, registered, err := resolveSDConfig(cc, otherPath)
	require.NoError(t, err)
	assert.True(t, registered)
	assert.NotEqual(t, "notes", alias)
}
