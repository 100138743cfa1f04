// Package packsnap implements the garbage-collection engine: it groups
// ranges of an instance's own updates into compact packs, and periodically
// serializes the merged document into whole-state snapshots, pruning
// superseded files once the replacement is safely flag-complete. Only an
// instance's own files are ever written or deleted here — peer directories
// are always read-only to this package.
package packsnap

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/storedir"
)

// Thresholds configures when packing and snapshotting trigger. Defaults
// match the spec's P=64 / S=256 but are configuration-resolved so an
// operator can tune GC cadence per Storage Directory.
type Thresholds struct {
	Pack     int
	Snapshot int
}

// DefaultThresholds returns the spec's default P/S values.
func DefaultThresholds() Thresholds {
	return Thresholds{Pack: 64, Snapshot: 256}
}

// ShouldPack reports whether an instance's own loose update count warrants
// building a new pack.
func (t Thresholds) ShouldPack(looseUpdateCount int) bool {
	return looseUpdateCount > t.Pack
}

// ShouldSnapshot reports whether the number of updates applied since the
// last snapshot warrants taking a new one.
func (t Thresholds) ShouldSnapshot(updatesSinceSnapshot int) bool {
	return updatesSinceSnapshot > t.Snapshot
}

// PackedUpdate is one update's entry inside a Pack, preserving its original
// sequence, timestamp, and opaque CRDT payload.
type PackedUpdate struct {
	Sequence  int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Data      []byte `json:"data"`
}

// Pack is the structured container written to
// packs/<instanceId>/<first>-<last>.yjson: a contiguous range of an
// instance's own updates, preserving application order, so applying a pack
// is equivalent to applying each of its updates in sequence order.
type Pack struct {
	Version       int            `json:"version"`
	InstanceID    uuid.UUID      `json:"instanceId"`
	NoteID        uuid.UUID      `json:"noteId"`
	SequenceRange [2]int64       `json:"sequenceRange"`
	Updates       []PackedUpdate `json:"updates"`

	// Filename is the on-disk name this Pack was decoded from, set by
	// ListPacks. Not part of the wire format: a pack's content never needs
	// to know its own name, but the merge engine needs it to quarantine the
	// whole file when one of its entries fails to decode as a CRDT update.
	Filename string `json:"-"`
}

// EncodePack serializes a Pack to its JSON wire form.
func EncodePack(p Pack) ([]byte, error) {
	p.Version = 1
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("packsnap: encode pack: %w", err)
	}
	return b, nil
}

// DecodePack parses a Pack's JSON wire form.
func DecodePack(raw []byte) (Pack, error) {
	var p Pack
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pack{}, fmt.Errorf("packsnap: decode pack: %w", err)
	}
	return p, nil
}

// WritePack builds the pack's range name from p.SequenceRange and writes it
// atomically, flag-complete, under dir (an instance's own
// packs/<instanceId> directory).
func WritePack(dir string, p Pack) error {
	payload, err := EncodePack(p)
	if err != nil {
		return err
	}
	name := storedir.PackFileName(p.SequenceRange[0], p.SequenceRange[1])
	if err := frame.WriteAtomicComplete(dir, name, payload); err != nil {
		return fmt.Errorf("packsnap: write pack %s/%s: %w", dir, name, err)
	}
	return nil
}

// BuildPack assembles a Pack from a contiguous, application-ordered run of
// updates for (noteID, instanceID).
func BuildPack(noteID, instanceID uuid.UUID, updates []PackedUpdate) Pack {
	first, last := int64(0), int64(-1)
	if len(updates) > 0 {
		first = updates[0].Sequence
		last = updates[len(updates)-1].Sequence
	}
	return Pack{
		Version:       1,
		InstanceID:    instanceID,
		NoteID:        noteID,
		SequenceRange: [2]int64{first, last},
		Updates:       updates,
	}
}
