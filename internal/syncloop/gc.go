package syncloop

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/merge"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
	"github.com/drewcsillag/notecove/internal/updatestore"
)

// maybeGC inspects noteID's own loose-update and since-last-snapshot counts
// against the configured thresholds and packs/snapshots as needed. GC only
// ever touches this instance's own files (spec.md §7: "cross-instance
// pruning forbidden") — a peer's directory is read-only to this process no
// matter how stale it looks.
func (l *Loop) maybeGC(noteID uuid.UUID, doc *merge.Document) {
	ownDir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)
	result, err := updatestore.List(l.cfg.Logger, ownDir)
	if err != nil {
		l.cfg.Logger.Warn("syncloop: gc list own updates failed",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
		return
	}

	if l.cfg.Thresholds.ShouldPack(len(result.Updates)) {
		l.packOwnUpdates(noteID, result.Updates)
	}

	ownSeq, hasOwn := doc.VectorClock[l.cfg.InstanceID.String()]
	if !hasOwn {
		return
	}
	lastSnapSeq, err := l.cfg.Bookkeeping.lastSnapshotSeq(noteID)
	if err != nil {
		l.cfg.Logger.Warn("syncloop: gc load snapshot cursor failed",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
		return
	}
	if l.cfg.Thresholds.ShouldSnapshot(int(ownSeq - lastSnapSeq)) {
		l.writeSnapshot(noteID, doc)
	}
}

// ForceGC runs pack-then-snapshot unconditionally for noteID, ignoring the
// configured thresholds — spec.md §4.4's "on explicit request" path.
func (l *Loop) ForceGC(noteID uuid.UUID) error {
	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownNote, noteID)
	}

	ownDir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)
	result, err := updatestore.List(l.cfg.Logger, ownDir)
	if err != nil {
		return fmt.Errorf("syncloop: force gc list own updates: %w", err)
	}
	if len(result.Updates) > 0 {
		l.packOwnUpdates(noteID, result.Updates)
	}
	l.writeSnapshot(noteID, doc)
	return nil
}

// packOwnUpdates builds and writes one pack covering every loose own update
// currently on disk, then removes the now-superseded loose files. Updates
// is expected sorted by sequence ascending, which updatestore.List
// guarantees.
func (l *Loop) packOwnUpdates(noteID uuid.UUID, updates []updatestore.Update) {
	if len(updates) == 0 {
		return
	}

	packed := make([]packsnap.PackedUpdate, len(updates))
	now := l.cfg.Clock.NowMillis()
	for i, u := range updates {
		packed[i] = packsnap.PackedUpdate{Sequence: u.Sequence, Timestamp: now, Data: u.Payload}
	}

	pack := packsnap.BuildPack(noteID, l.cfg.InstanceID, packed)
	dir := l.cfg.SD.PacksDir(noteID, l.cfg.InstanceID)
	if err := packsnap.WritePack(dir, pack); err != nil {
		l.cfg.Logger.Warn("syncloop: write pack failed, will retry next gc pass",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
		return
	}

	updDir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)
	for _, u := range updates {
		name := storedir.UpdateFileName(u.Sequence)
		if err := os.Remove(filepath.Join(updDir, name)); err != nil && !os.IsNotExist(err) {
			l.cfg.Logger.Warn("syncloop: prune packed update failed",
				slog.String("note_id", noteID.String()), slog.Int64("sequence", u.Sequence), slog.String("error", err.Error()))
		}
	}
}

// writeSnapshot materializes noteID's full current state as a new
// flag-complete snapshot, records the snapshot cursor, then prunes this
// instance's own dominated snapshots, packs, and loose updates now that
// their content is captured by the new snapshot.
func (l *Loop) writeSnapshot(noteID uuid.UUID, doc *merge.Document) {
	snap := packsnap.Snapshot{
		InstanceID:  l.cfg.InstanceID,
		NoteID:      noteID,
		VectorClock: copyVC(doc.VectorClock),
		State:       doc.CRDT.EncodeStateAsUpdate(),
	}

	dir := l.cfg.SD.SnapshotsDir(noteID, l.cfg.InstanceID)
	name, err := packsnap.WriteSnapshot(dir, l.snapshotSeed, snap)
	if err != nil {
		l.cfg.Logger.Warn("syncloop: write snapshot failed, will retry next gc pass",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
		return
	}

	ownSeq := doc.VectorClock[l.cfg.InstanceID.String()]
	if err := l.cfg.Bookkeeping.setLastSnapshotSeq(noteID, ownSeq); err != nil {
		l.cfg.Logger.Warn("syncloop: save snapshot cursor failed",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
	}

	l.pruneDominatedSnapshots(noteID, dir, name, snap.VectorClock)
	l.prunePacksAndUpdatesThrough(noteID, ownSeq)
}

func (l *Loop) pruneDominatedSnapshots(noteID uuid.UUID, dir, keepName string, newClock map[string]int64) {
	listResult, err := packsnap.ListSnapshots(l.cfg.Logger, dir)
	if err != nil {
		l.cfg.Logger.Warn("syncloop: list snapshots for pruning failed",
			slog.String("note_id", noteID.String()), slog.String("error", err.Error()))
		return
	}
	for _, name := range packsnap.DominatedSnapshotNames(newClock, listResult.Candidates) {
		if name == keepName {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			l.cfg.Logger.Warn("syncloop: prune dominated snapshot failed",
				slog.String("note_id", noteID.String()), slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}

func (l *Loop) prunePacksAndUpdatesThrough(noteID uuid.UUID, coveredThrough int64) {
	packDir := l.cfg.SD.PacksDir(noteID, l.cfg.InstanceID)
	packResult, err := packsnap.ListPacks(l.cfg.Logger, packDir)
	if err == nil {
		ranges := make([]packsnap.Range, len(packResult.Packs))
		for i, p := range packResult.Packs {
			ranges[i] = packsnap.Range{First: p.SequenceRange[0], Last: p.SequenceRange[1]}
		}
		for _, r := range packsnap.PrunableRanges(ranges, coveredThrough) {
			name := storedir.PackFileName(r.First, r.Last)
			if err := os.Remove(filepath.Join(packDir, name)); err != nil && !os.IsNotExist(err) {
				l.cfg.Logger.Warn("syncloop: prune covered pack failed",
					slog.String("note_id", noteID.String()), slog.String("name", name), slog.String("error", err.Error()))
			}
		}
	}

	updDir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)
	updResult, err := updatestore.List(l.cfg.Logger, updDir)
	if err != nil {
		return
	}
	seqs := make([]int64, len(updResult.Updates))
	for i, u := range updResult.Updates {
		seqs[i] = u.Sequence
	}
	for _, s := range packsnap.PrunableSequences(seqs, coveredThrough) {
		name := storedir.UpdateFileName(s)
		if err := os.Remove(filepath.Join(updDir, name)); err != nil && !os.IsNotExist(err) {
			l.cfg.Logger.Warn("syncloop: prune covered update failed",
				slog.String("note_id", noteID.String()), slog.Int64("sequence", s), slog.String("error", err.Error()))
		}
	}
}
