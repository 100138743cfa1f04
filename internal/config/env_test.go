package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/env/config.toml")
	t.Setenv(EnvProfile, "alice")
	t.Setenv(EnvSD, "home")

	env := ReadEnvOverrides()
	assert.Equal(t, "/env/config.toml", env.ConfigPath)
	assert.Equal(t, "alice", env.Profile)
	assert.Equal(t, "home", env.SD)
}
