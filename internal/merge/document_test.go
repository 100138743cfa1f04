package merge

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewcsillag/notecove/internal/crdt"
	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
	"github.com/drewcsillag/notecove/internal/updatestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSD(t *testing.T) storedir.SD {
	t.Helper()
	return storedir.SD{ID: uuid.New(), Path: t.TempDir()}
}

// writeGoodUpdate appends text to the end of doc and writes the resulting
// ops as update seq. Successive calls for one instance share one doc so
// their position keys do not collide.
func writeGoodUpdate(t *testing.T, sd storedir.SD, noteID, instanceID uuid.UUID, doc *crdt.Doc, seq int64, text string) {
	t.Helper()
	var after crdt.PosKey
	if keys := doc.Keys(); len(keys) > 0 {
		after = keys[len(keys)-1]
	}
	doc.InsertText(after, text)
	require.NoError(t, updatestore.WriteOwn(sd.UpdatesDir(noteID, instanceID), seq, doc.EncodeUpdate()))
}

// TestLoadNote_QuarantinesUndecodableLooseUpdate covers spec.md §4.5 step 5 /
// §7: a flag-complete update file whose payload the CRDT library rejects
// must be quarantined and skipped, not abort the whole note's merge.
func TestLoadNote_QuarantinesUndecodableLooseUpdate(t *testing.T) {
	sd := testSD(t)
	noteID := uuid.New()
	instanceID := uuid.New()

	author := crdt.NewDoc(instanceID.String())
	writeGoodUpdate(t, sd, noteID, instanceID, author, 0, "ab")

	updDir := sd.UpdatesDir(noteID, instanceID)
	require.NoError(t, frame.WriteAtomicComplete(updDir, "1.yjson", []byte("not valid crdt json")))
	writeGoodUpdate(t, sd, noteID, instanceID, author, 2, "cd")

	doc, report, err := LoadNote(testLogger(), sd, noteID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, report.QuarantinedFiles)
	assert.Equal(t, "abcd", doc.CRDT.Text())

	_, statErr := os.Stat(filepath.Join(updDir, "1.yjson"+frame.QuarantineSuffix))
	assert.NoError(t, statErr, "corrupt update should be renamed with .corrupt suffix")
	_, statErr = os.Stat(filepath.Join(updDir, "1.yjson"))
	assert.True(t, os.IsNotExist(statErr), "original corrupt name should no longer exist")
}

// TestLoadNote_QuarantinesPackWithUndecodableEntry covers the same case for
// a pack: one bad entry can't be renamed on its own, so the whole pack file
// is quarantined while the rest of the note still converges.
func TestLoadNote_QuarantinesPackWithUndecodableEntry(t *testing.T) {
	sd := testSD(t)
	noteID := uuid.New()
	instanceID := uuid.New()

	goodDoc := crdt.NewDoc(instanceID.String())
	goodDoc.InsertText(nil, "hi")

	pack := packsnap.BuildPack(noteID, instanceID, []packsnap.PackedUpdate{
		{Sequence: 0, Timestamp: 1, Data: goodDoc.EncodeUpdate()},
		{Sequence: 1, Timestamp: 2, Data: []byte("not valid crdt json")},
	})
	packDir := sd.PacksDir(noteID, instanceID)
	require.NoError(t, packsnap.WritePack(packDir, pack))

	// A note with nothing else to merge should still converge cleanly.
	doc, report, err := LoadNote(testLogger(), sd, noteID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, report.QuarantinedFiles)
	assert.Equal(t, "", doc.CRDT.Text(), "quarantined pack's ops, including its good entries, are dropped wholesale")

	name := storedir.PackFileName(0, 1)
	_, statErr := os.Stat(filepath.Join(packDir, name+frame.QuarantineSuffix))
	assert.NoError(t, statErr, "corrupt pack should be renamed with .corrupt suffix")
}

// TestLoadNote_QuarantinesSnapshotWithUndecodableState mirrors the above for
// a snapshot whose container parses but whose embedded CRDT state dump does
// not: the merge falls back to whatever packs/updates remain instead of
// failing the whole note.
func TestLoadNote_QuarantinesSnapshotWithUndecodableState(t *testing.T) {
	sd := testSD(t)
	noteID := uuid.New()
	instanceID := uuid.New()

	writeGoodUpdate(t, sd, noteID, instanceID, crdt.NewDoc(instanceID.String()), 0, "ab")

	snapDir := sd.SnapshotsDir(noteID, instanceID)
	snap := packsnap.Snapshot{
		InstanceID:  instanceID,
		NoteID:      noteID,
		VectorClock: map[string]int64{instanceID.String(): 5},
		State:       []byte("not valid crdt json"),
	}
	name, err := packsnap.WriteSnapshot(snapDir, sd.ID[:], snap)
	require.NoError(t, err)

	doc, report, err := LoadNote(testLogger(), sd, noteID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, report.QuarantinedFiles)
	assert.Equal(t, "ab", doc.CRDT.Text(), "falls back to the loose update once the bad snapshot is quarantined")

	_, statErr := os.Stat(filepath.Join(snapDir, name+frame.QuarantineSuffix))
	assert.NoError(t, statErr, "corrupt snapshot should be renamed with .corrupt suffix")
}
