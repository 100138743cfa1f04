package storedir

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesNotesDir(t *testing.T) {
	dir := t.TempDir()
	want := uuid.New()
	sd, err := Open(dir, func() uuid.UUID { return want })
	require.NoError(t, err)
	assert.Equal(t, want, sd.ID)
	assert.DirExists(t, filepath.Join(dir, "notes"))
}

func TestPathHelpers(t *testing.T) {
	sd := SD{ID: uuid.New(), Path: "/tmp/sd"}
	note := uuid.New()
	inst := uuid.New()
	profile := uuid.New()

	assert.Equal(t, filepath.Join("/tmp/sd", "notes", note.String(), "updates", inst.String()), sd.UpdatesDir(note, inst))
	assert.Equal(t, filepath.Join("/tmp/sd", "notes", note.String(), "packs", inst.String()), sd.PacksDir(note, inst))
	assert.Equal(t, filepath.Join("/tmp/sd", "notes", note.String(), "snapshots", inst.String()), sd.SnapshotsDir(note, inst))
	assert.Equal(t, filepath.Join("/tmp/sd", "notes", note.String(), "activity"), sd.ActivityDir(note))

	assert.Equal(t, "0.yjson", UpdateFileName(0))
	assert.Equal(t, "41-99.yjson", PackFileName(41, 99))
	assert.Equal(t, "deadbeef.yjson", SnapshotFileName("deadbeef"))
	assert.Equal(t, profile.String()+"."+inst.String()+".log", ActivityLogName(profile, inst))
}
