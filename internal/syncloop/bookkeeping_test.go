package syncloop

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBookkeeping_CursorRoundTrip(t *testing.T) {
	bk, err := openBookkeepingMemory(context.Background(), testLogger())
	require.NoError(t, err)
	defer bk.Close()

	noteID := uuid.New()

	zero, err := bk.loadCursor(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero.LastMtime)
	assert.Empty(t, zero.VectorClock)

	want := cursor{LastMtime: 12345, VectorClock: map[string]int64{uuid.New().String(): 3}}
	require.NoError(t, bk.saveCursor(noteID, want))

	got, err := bk.loadCursor(noteID)
	require.NoError(t, err)
	assert.Equal(t, want.LastMtime, got.LastMtime)
	assert.Equal(t, want.VectorClock, got.VectorClock)

	want.LastMtime = 99999
	require.NoError(t, bk.saveCursor(noteID, want))
	got, err = bk.loadCursor(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(99999), got.LastMtime)
}

func TestBookkeeping_SnapshotSeqDefaultsToNegativeOne(t *testing.T) {
	bk, err := openBookkeepingMemory(context.Background(), testLogger())
	require.NoError(t, err)
	defer bk.Close()

	noteID := uuid.New()
	seq, err := bk.lastSnapshotSeq(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), seq)

	require.NoError(t, bk.setLastSnapshotSeq(noteID, 41))
	seq, err = bk.lastSnapshotSeq(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(41), seq)

	require.NoError(t, bk.setLastSnapshotSeq(noteID, 42))
	seq, err = bk.lastSnapshotSeq(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}
