// Package merge implements the component that loads a note's snapshots,
// packs, and loose updates off disk into one converged in-memory CRDT
// document, and assigns sequence numbers to new local edits on their way
// back out. It is the only component that imports internal/crdt directly —
// everything above it deals in Documents and opaque update bytes.
package merge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/crdt"
	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
	"github.com/drewcsillag/notecove/internal/updatestore"
)

// Document is the fully merged state of one note: an in-memory CRDT
// replica plus the vector clock (instanceId → highest sequence
// incorporated) that state corresponds to.
type Document struct {
	NoteID      uuid.UUID
	CRDT        *crdt.Doc
	VectorClock map[string]int64
}

// LoadReport summarizes non-fatal conditions observed while loading a
// note, so the sync loop can decide whether to retry sooner or just wait
// for the next poll.
type LoadReport struct {
	IncompleteFiles int
	QuarantinedFiles int
}

// LoadNote implements the merge algorithm: pick each instance's best
// snapshot, apply every pack and loose update beyond what that snapshot
// covers, for every instance directory found under updates/, packs/, and
// snapshots/. The result's vector clock is the pointwise maximum of every
// flag-complete input observed. Calling LoadNote twice against an
// unchanged directory produces an equal Document both times — it never
// mutates disk state, so it is safe to call on every poll.
func LoadNote(logger *slog.Logger, sd storedir.SD, noteID uuid.UUID, ownActor uuid.UUID) (*Document, LoadReport, error) {
	doc := crdt.NewDoc(ownActor.String())
	vc := make(map[string]int64)
	var report LoadReport

	instances, err := listInstanceDirs(sd.NoteDir(noteID))
	if err != nil {
		return nil, report, fmt.Errorf("merge: list instances for note %s: %w", noteID, err)
	}

	for _, instanceID := range instances {
		coveredThrough := int64(-1)

		snapDir := sd.SnapshotsDir(noteID, instanceID)
		snapResult, err := packsnap.ListSnapshots(logger, snapDir)
		if err != nil {
			return nil, report, fmt.Errorf("merge: list snapshots %s: %w", snapDir, err)
		}
		report.IncompleteFiles += snapResult.Incomplete
		report.QuarantinedFiles += snapResult.Quarantined

		if best, ok := packsnap.SelectBest(snapResult.Candidates); ok {
			if err := crdt.ApplyUpdate(doc, best.Snapshot.State); err != nil {
				// The container decoded fine (ListSnapshots already checked
				// that); it's the embedded CRDT state dump that the CRDT
				// library rejects. spec.md §4.5 step 5 / §7: quarantine and
				// keep merging the rest of this note rather than aborting.
				if qerr := frame.Quarantine(snapDir, best.Filename); qerr != nil {
					return nil, report, fmt.Errorf("merge: quarantine snapshot %s/%s: %w", snapDir, best.Filename, qerr)
				}
				logger.Error("merge: quarantined snapshot with undecodable CRDT state",
					slog.String("dir", snapDir), slog.String("name", best.Filename), slog.String("error", err.Error()))
				report.QuarantinedFiles++
			} else {
				mergeVectorClock(vc, best.Snapshot.VectorClock)
				if seq, ok := best.Snapshot.VectorClock[instanceID.String()]; ok && seq > coveredThrough {
					coveredThrough = seq
				}
			}
		}

		packDir := sd.PacksDir(noteID, instanceID)
		packResult, err := packsnap.ListPacks(logger, packDir)
		if err != nil {
			return nil, report, fmt.Errorf("merge: list packs %s: %w", packDir, err)
		}
		report.IncompleteFiles += len(packResult.Incomplete)
		report.QuarantinedFiles += len(packResult.Quarantined)

		for _, p := range packResult.Packs {
			// Validate every entry before applying any of them: a pack's
			// ops must land as one unit, not a prefix of good ones followed
			// by a discarded tail, once one entry is found undecodable.
			var badSeq int64
			var badErr error
			for _, u := range p.Updates {
				if u.Sequence <= coveredThrough {
					continue
				}
				if _, err := crdt.DecodeUpdateBytes(u.Data); err != nil {
					badSeq, badErr = u.Sequence, err
					break
				}
			}
			if badErr != nil {
				// One entry inside the pack is undecodable. A single
				// packed entry can't be renamed on its own, so the whole
				// pack file is quarantined; every other pack and the
				// rest of this note's merge still proceed (spec.md
				// §4.5 step 5 / §7).
				logger.Error("merge: quarantining pack with undecodable update",
					slog.String("dir", packDir), slog.String("name", p.Filename),
					slog.Int64("sequence", badSeq), slog.String("error", badErr.Error()))
				if qerr := frame.Quarantine(packDir, p.Filename); qerr != nil {
					return nil, report, fmt.Errorf("merge: quarantine pack %s/%s: %w", packDir, p.Filename, qerr)
				}
				report.QuarantinedFiles++
				continue
			}

			for _, u := range p.Updates {
				if u.Sequence <= coveredThrough {
					continue
				}
				if err := crdt.ApplyUpdate(doc, u.Data); err != nil {
					return nil, report, fmt.Errorf("merge: apply validated packed update %s seq %d: %w", packDir, u.Sequence, err)
				}
			}
			if p.SequenceRange[1] > coveredThrough {
				coveredThrough = p.SequenceRange[1]
			}
		}

		updDir := sd.UpdatesDir(noteID, instanceID)
		updResult, err := updatestore.List(logger, updDir)
		if err != nil {
			return nil, report, fmt.Errorf("merge: list updates %s: %w", updDir, err)
		}
		report.IncompleteFiles += len(updResult.Incomplete)
		report.QuarantinedFiles += len(updResult.Quarantined)

		for _, u := range updResult.Updates {
			if u.Sequence <= coveredThrough {
				continue
			}
			if err := crdt.ApplyUpdate(doc, u.Payload); err != nil {
				// The frame was flag-complete (updatestore.List already
				// checked that); it's the CRDT payload itself the library
				// rejects. Quarantine this one file and keep applying the
				// rest of the instance's updates (spec.md §4.5 step 5 / §7).
				name := storedir.UpdateFileName(u.Sequence)
				if qerr := frame.Quarantine(updDir, name); qerr != nil {
					return nil, report, fmt.Errorf("merge: quarantine update %s/%s: %w", updDir, name, qerr)
				}
				logger.Error("merge: quarantined update with undecodable CRDT payload",
					slog.String("dir", updDir), slog.String("name", name),
					slog.Int64("sequence", u.Sequence), slog.String("error", err.Error()))
				report.QuarantinedFiles++
				continue
			}
			coveredThrough = u.Sequence
		}

		if cur, ok := vc[instanceID.String()]; coveredThrough >= 0 && (!ok || cur < coveredThrough) {
			vc[instanceID.String()] = coveredThrough
		}
	}

	return &Document{NoteID: noteID, CRDT: doc, VectorClock: vc}, report, nil
}

// mergeVectorClock folds src into dst with a pointwise maximum.
func mergeVectorClock(dst, src map[string]int64) {
	for k, v := range src {
		if cur, ok := dst[k]; !ok || cur < v {
			dst[k] = v
		}
	}
}

// NextSequence returns the next sequence number this Document's owning
// instance should assign for a new local edit.
func (d *Document) NextSequence(instanceID uuid.UUID) int64 {
	if seq, ok := d.VectorClock[instanceID.String()]; ok {
		return seq + 1
	}
	return 0
}

// Observe records that instanceID's stream now extends through seq. The
// caller is responsible for having actually persisted that sequence first.
func (d *Document) Observe(instanceID uuid.UUID, seq int64) {
	if cur, ok := d.VectorClock[instanceID.String()]; !ok || cur < seq {
		d.VectorClock[instanceID.String()] = seq
	}
}

// ApplyLocalEdit folds an embedder-produced update (its own or a peer's)
// into this Document's CRDT state. It is idempotent: re-applying bytes
// already folded in is a no-op.
func (d *Document) ApplyLocalEdit(updateBytes []byte) error {
	return crdt.ApplyUpdate(d.CRDT, updateBytes)
}

// Equal reports whether two vector clocks describe the same document
// state, for the sync loop's "did anything change" check (P2 idempotence:
// an unchanged note must not trigger subscriber callbacks).
func Equal(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// listInstanceDirs returns the union of UUID-named subdirectories under
// noteDir/updates, noteDir/packs, and noteDir/snapshots — every instance
// that has ever written anything for this note, whether still active or
// long gone.
func listInstanceDirs(noteDir string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	for _, sub := range []string{"updates", "packs", "snapshots"} {
		entries, err := os.ReadDir(noteDirJoin(noteDir, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			id, err := uuid.Parse(ent.Name())
			if err != nil {
				continue
			}
			seen[id] = true
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func noteDirJoin(noteDir, sub string) string {
	return noteDir + string(os.PathSeparator) + sub
}
