package syncloop

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/merge"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
)

func newTestLoop(t *testing.T, dir string, instanceID uuid.UUID, thresholds packsnap.Thresholds) *Loop {
	t.Helper()

	sd, err := storedir.Open(dir, func() uuid.UUID { return uuid.New() })
	require.NoError(t, err)

	bk, err := openBookkeepingMemory(context.Background(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { bk.Close() })

	l, err := newLoop(loopConfig{
		SD:          sd,
		InstanceID:  instanceID,
		ProfileID:   uuid.New(),
		Logger:      testLogger(),
		Clock:       clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Thresholds:  thresholds,
		UseFsnotify: false,
		Bookkeeping: bk,
	})
	require.NoError(t, err)
	return l
}

func TestLoop_CreateNoteAndGetInfo(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())

	noteID, err := l.CreateNote("hello world", "My Title")
	require.NoError(t, err)

	info, err := l.GetInfo(noteID)
	require.NoError(t, err)
	assert.Equal(t, "My Title", info.Title)
	assert.False(t, info.Deleted)
	assert.Equal(t, int64(0), info.VectorClock[l.cfg.InstanceID.String()])
}

func TestLoop_CreateNoteDerivesTitleFromBody(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())

	noteID, err := l.CreateNote("first line\nsecond line", "")
	require.NoError(t, err)

	info, err := l.GetInfo(noteID)
	require.NoError(t, err)
	assert.Equal(t, "first line", info.Title)
}

func TestLoop_DeleteNoteSetsTombstone(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())

	noteID, err := l.CreateNote("body", "t")
	require.NoError(t, err)
	require.NoError(t, l.DeleteNote(noteID))

	info, err := l.GetInfo(noteID)
	require.NoError(t, err)
	assert.True(t, info.Deleted)
}

// TestLoop_TwoInstancesConverge exercises the core convergence property
// (spec.md §8's P1): a note created by one instance, observed via a
// direct merge pass by a second instance sharing the same SD path,
// produces identical text and vector clocks on both sides.
func TestLoop_TwoInstancesConverge(t *testing.T) {
	dir := t.TempDir()
	instanceA := uuid.New()
	instanceB := uuid.New()

	loopA := newTestLoop(t, dir, instanceA, packsnap.DefaultThresholds())
	noteID, err := loopA.CreateNote("hello from A", "Shared")
	require.NoError(t, err)

	loopB := newTestLoop(t, dir, instanceB, packsnap.DefaultThresholds())
	require.NoError(t, loopB.mergeNote(noteID))

	docA, err := loopA.getOrLoadDoc(noteID)
	require.NoError(t, err)
	docB, err := loopB.getOrLoadDoc(noteID)
	require.NoError(t, err)

	assert.Equal(t, docA.CRDT.Text(), docB.CRDT.Text())
	assert.Equal(t, docA.VectorClock, docB.VectorClock)
}

func TestLoop_SubscribeFiresOnMerge(t *testing.T) {
	dir := t.TempDir()
	instanceA := uuid.New()
	instanceB := uuid.New()

	loopA := newTestLoop(t, dir, instanceA, packsnap.DefaultThresholds())
	noteID, err := loopA.CreateNote("v1", "t")
	require.NoError(t, err)

	loopB := newTestLoop(t, dir, instanceB, packsnap.DefaultThresholds())

	fired := make(chan *merge.Document, 1)
	unsub := loopB.Subscribe(noteID, func(d *merge.Document) {
		fired <- d
	})
	defer unsub()

	require.NoError(t, loopB.mergeNote(noteID))

	select {
	case d := <-fired:
		assert.Equal(t, "v1", d.CRDT.Text())
	default:
		t.Fatal("subscriber callback did not fire")
	}
}

func TestLoop_SubscribeDoesNotFireWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())

	noteID, err := l.CreateNote("v1", "t")
	require.NoError(t, err)
	require.NoError(t, l.mergeNote(noteID)) // prime the cache with no disk changes since

	calls := 0
	unsub := l.Subscribe(noteID, func(d *merge.Document) { calls++ })
	defer unsub()

	require.NoError(t, l.mergeNote(noteID))
	assert.Equal(t, 0, calls, "an unchanged vector clock must not re-fire subscribers (P2 idempotence)")
}

// TestLoop_GCPacksAndSnapshotsOwnUpdates drives enough edits past
// threshold-1 pack/snapshot thresholds to trigger both GC paths, then
// checks the bookkeeping snapshot cursor advanced and the document text
// still reads back correctly after compaction.
func TestLoop_GCPacksAndSnapshotsOwnUpdates(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.Thresholds{Pack: 1, Snapshot: 1})

	noteID, err := l.CreateNote("v0", "t")
	require.NoError(t, err)

	doc, err := l.getOrLoadDoc(noteID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		doc.CRDT.InsertText(nil, "x")
		payload := doc.CRDT.EncodeUpdate()
		require.NoError(t, l.persistOwnUpdate(noteID, doc, payload))
		l.maybeGC(noteID, doc)
	}

	seq, err := l.cfg.Bookkeeping.lastSnapshotSeq(noteID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seq, int64(0), "gc should have snapshotted at least once")
	assert.Contains(t, doc.CRDT.Text(), "x")
}

func TestLoop_AssignFolderPersistsAndRejectsCycles(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())

	require.NoError(t, l.AssignFolder("work", ""))
	require.NoError(t, l.AssignFolder("project-a", "work"))

	parent, ok := l.folderIndex().Parent("project-a")
	require.True(t, ok)
	assert.Equal(t, "work", parent)

	err := l.AssignFolder("work", "project-a")
	assert.ErrorIs(t, err, merge.ErrFolderCycle)
}

func TestLoop_FolderIndexSurvivesReloadAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	loopA := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())
	require.NoError(t, loopA.AssignFolder("work", ""))

	loopB := newTestLoop(t, dir, uuid.New(), packsnap.DefaultThresholds())
	loopB.mergeFolderIndex()

	parent, ok := loopB.folderIndex().Parent("work")
	require.True(t, ok)
	assert.Equal(t, "", parent)
}
