// Package storedir defines the on-disk layout of a Storage Directory (SD)
// and the path helpers every other component uses to address a note's
// updates, packs, snapshots, and activity log. Keeping this in one place
// means the layout described in the root of this repository's design is
// expressed exactly once.
package storedir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SD addresses one Storage Directory on the local filesystem.
type SD struct {
	ID   uuid.UUID
	Path string
}

// Root returns the absolute filesystem root of the SD.
func (sd SD) Root() string { return sd.Path }

// NotesDir returns <SD>/notes.
func (sd SD) NotesDir() string { return filepath.Join(sd.Path, "notes") }

// NoteDir returns <SD>/notes/<noteId>.
func (sd SD) NoteDir(noteID uuid.UUID) string {
	return filepath.Join(sd.NotesDir(), noteID.String())
}

// UpdatesDir returns <SD>/notes/<noteId>/updates/<instanceId>.
func (sd SD) UpdatesDir(noteID, instanceID uuid.UUID) string {
	return filepath.Join(sd.NoteDir(noteID), "updates", instanceID.String())
}

// PacksDir returns <SD>/notes/<noteId>/packs/<instanceId>.
func (sd SD) PacksDir(noteID, instanceID uuid.UUID) string {
	return filepath.Join(sd.NoteDir(noteID), "packs", instanceID.String())
}

// SnapshotsDir returns <SD>/notes/<noteId>/snapshots/<instanceId>.
func (sd SD) SnapshotsDir(noteID, instanceID uuid.UUID) string {
	return filepath.Join(sd.NoteDir(noteID), "snapshots", instanceID.String())
}

// ActivityDir returns <SD>/notes/<noteId>/activity.
func (sd SD) ActivityDir(noteID uuid.UUID) string {
	return filepath.Join(sd.NoteDir(noteID), "activity")
}

// ActivityLogName returns the file name of the activity log for
// (profileId, instanceId): "<profileId>.<instanceId>.log".
func ActivityLogName(profileID, instanceID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.log", profileID, instanceID)
}

// UpdateFileName formats an update's on-disk name: decimal sequence, no
// leading zeros, ".yjson" extension.
func UpdateFileName(seq int64) string {
	return fmt.Sprintf("%d.yjson", seq)
}

// PackFileName formats a pack's on-disk name for the inclusive range
// [first, last].
func PackFileName(first, last int64) string {
	return fmt.Sprintf("%d-%d.yjson", first, last)
}

// SnapshotFileName formats a snapshot's on-disk name from its vector-clock
// hash, hex-encoded.
func SnapshotFileName(hashHex string) string {
	return hashHex + ".yjson"
}

// Open ensures path and its notes/ subdirectory exist and returns an SD
// handle carrying the id produced by idForNew. Persisting and recovering
// that id across process restarts is the caller's job (the CLI keeps it in
// the SD's entry of the config file); nothing here reads or writes it in
// the note tree.
func Open(path string, idForNew func() uuid.UUID) (SD, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SD{}, fmt.Errorf("storedir: resolve path %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return SD{}, fmt.Errorf("storedir: mkdir %s: %w", abs, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "notes"), 0o755); err != nil {
		return SD{}, fmt.Errorf("storedir: mkdir notes: %w", err)
	}
	return SD{ID: idForNew(), Path: abs}, nil
}
