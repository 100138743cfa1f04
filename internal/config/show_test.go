package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_IncludesActiveSD(t *testing.T) {
	res := &Resolved{
		Config:  DefaultConfig(),
		Profile: ProfileConfig{ID: "11111111-1111-1111-1111-111111111111", Name: "alice"},
		SD:      &SDConfig{Path: "/home/alice/notes", ID: "sd-1", PackThreshold: 64, SnapshotThreshold: 256},
		SDAlias: "home",
	}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(res, &buf))
	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "sd.home")
	assert.Contains(t, out, "/home/alice/notes")
}
