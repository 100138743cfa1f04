package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindQuarantined_FindsOnlyCorruptSuffixedFiles(t *testing.T) {
	root := t.TempDir()
	noteDir := filepath.Join(root, "notes", "abc", "updates", "inst1")
	require.NoError(t, os.MkdirAll(noteDir, 0o755))

	good := filepath.Join(noteDir, "0.yjson")
	bad := filepath.Join(noteDir, "1.yjson.corrupt")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("y"), 0o644))

	found, err := findQuarantined(root)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bad, found[0])
}

func TestFindQuarantined_EmptyTreeFindsNothing(t *testing.T) {
	root := t.TempDir()
	found, err := findQuarantined(root)
	require.NoError(t, err)
	assert.Empty(t, found)
}
