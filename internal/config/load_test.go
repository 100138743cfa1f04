package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[profile]
id = "11111111-1111-1111-1111-111111111111"
name = "alice"

[sync]
poll_interval = "2s"
poll_jitter = "750ms"

[sd.work]
path = "/home/alice/notes"
id = "22222222-2222-2222-2222-222222222222"
pack_threshold = 64
snapshot_threshold = 256
`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Profile.Name)
	assert.Equal(t, "2s", cfg.Sync.PollInterval)
	require.Contains(t, cfg.SDs, "work")
	assert.Equal(t, "/home/alice/notes", cfg.SDs["work"].Path)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
pol_interval = "2s"
`)
	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoadOrDefault_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.toml", testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, cfg.Sync.PollInterval)
}

func TestResolveConfigPath_Priority(t *testing.T) {
	logger := testLogger(t)

	assert.NotEmpty(t, ResolveConfigPath(EnvOverrides{}, "", logger))
	assert.Equal(t, "/env/path.toml", ResolveConfigPath(EnvOverrides{ConfigPath: "/env/path.toml"}, "", logger))
	assert.Equal(t, "/cli/path.toml",
		ResolveConfigPath(EnvOverrides{ConfigPath: "/env/path.toml"}, "/cli/path.toml", logger))
}

func TestResolve_SingleSDAutoSelected(t *testing.T) {
	path := writeTestConfig(t, `
[profile]
id = "11111111-1111-1111-1111-111111111111"

[sd.home]
path = "/home/alice/notes"
pack_threshold = 64
snapshot_threshold = 256
`)

	res, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.NoError(t, err)
	require.NotNil(t, res.SD)
	assert.Equal(t, "home", res.SDAlias)
}

func TestResolve_AmbiguousWithoutSelector(t *testing.T) {
	path := writeTestConfig(t, `
[profile]
id = "11111111-1111-1111-1111-111111111111"

[sd.home]
path = "/home/alice/notes"
pack_threshold = 64
snapshot_threshold = 256

[sd.work]
path = "/home/alice/work-notes"
pack_threshold = 64
snapshot_threshold = 256
`)

	res, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.NoError(t, err)
	assert.Nil(t, res.SD)

	res, err = Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path, SD: "work"}, testLogger(t))
	require.NoError(t, err)
	require.NotNil(t, res.SD)
	assert.Equal(t, "work", res.SDAlias)
}
