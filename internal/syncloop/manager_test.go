package syncloop

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(uuid.New(), uuid.New(), logger, clock.System{})
}

func TestManager_OpenIsIdempotentBySDID(t *testing.T) {
	m := newTestManager(t)
	sdPath := t.TempDir()
	bkPath := filepath.Join(t.TempDir(), "bk.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h1, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)
	defer m.CloseAll()

	h2, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath, ID: h1.SD().ID.String()}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)

	assert.Same(t, h1, h2, "re-opening the same SD id should return the existing handle")
}

func TestHandle_CreateEditAndGetInfoRoundTrip(t *testing.T) {
	m := newTestManager(t)
	sdPath := t.TempDir()
	bkPath := filepath.Join(t.TempDir(), "bk.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)
	defer m.CloseAll()

	noteID, err := h.CreateNote("hello", "Greeting")
	require.NoError(t, err)

	info, err := h.GetInfo(noteID)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", info.Title)

	notes, err := h.ListNotes()
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestHandle_MethodsFailAfterClose(t *testing.T) {
	m := newTestManager(t)
	sdPath := t.TempDir()
	bkPath := filepath.Join(t.TempDir(), "bk.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)

	noteID, err := h.CreateNote("hello", "t")
	require.NoError(t, err)

	require.NoError(t, h.Close())

	_, err = h.GetInfo(noteID)
	assert.ErrorIs(t, err, ErrClosed)

	err = h.ApplyEdit(noteID, nil)
	assert.ErrorIs(t, err, ErrClosed)

	err = h.EditText(noteID, "more")
	assert.ErrorIs(t, err, ErrClosed)

	err = h.ForceGC(noteID)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandle_EditTextAppendsToBody(t *testing.T) {
	m := newTestManager(t)
	sdPath := t.TempDir()
	bkPath := filepath.Join(t.TempDir(), "bk.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)
	defer m.CloseAll()

	noteID, err := h.CreateNote("hello", "t")
	require.NoError(t, err)

	require.NoError(t, h.EditText(noteID, " world"))

	content, err := h.GetContent(noteID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", content.Body)
}

func TestHandle_ForceGCProducesPackAndSnapshot(t *testing.T) {
	m := newTestManager(t)
	sdPath := t.TempDir()
	bkPath := filepath.Join(t.TempDir(), "bk.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := m.Open(ctx, sdPath, config.SDConfig{Path: sdPath}, config.SyncConfig{UseFsnotify: false}, bkPath)
	require.NoError(t, err)
	defer m.CloseAll()

	noteID, err := h.CreateNote("hello", "t")
	require.NoError(t, err)
	require.NoError(t, h.EditText(noteID, " world"))

	require.NoError(t, h.ForceGC(noteID))

	info, err := h.GetInfo(noteID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.PackCount, 1)
	assert.GreaterOrEqual(t, info.SnapshotCount, 1)
}
