package packsnap

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/storedir"
)

// Snapshot is the structured container written to
// snapshots/<instanceId>/<vectorClockHash>.yjson. Carrying the vector clock
// alongside the raw CRDT state (rather than only as a one-way hash in the
// filename) lets the merge engine rank candidate snapshots by dominance
// without decoding every candidate's full document state.
type Snapshot struct {
	Version     int              `json:"version"`
	InstanceID  uuid.UUID        `json:"instanceId"`
	NoteID      uuid.UUID        `json:"noteId"`
	VectorClock map[string]int64 `json:"vectorClock"`
	State       []byte           `json:"state"`
}

// EncodeSnapshot serializes a Snapshot to its JSON wire form.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	s.Version = 1
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("packsnap: encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses a Snapshot's JSON wire form.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("packsnap: decode snapshot: %w", err)
	}
	return s, nil
}

// HashVectorClock computes the 128-bit stable hash that names a snapshot
// file: FNV-1a over the sorted "instanceId=sequence;" pairs, salted with a
// seed pinned to the owning SD so the hash space is reproducible within
// one SD's lifetime but not predictable across SDs.
func HashVectorClock(seed []byte, vc map[string]int64) string {
	h := fnv.New128a()
	h.Write(seed)
	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%d;", k, vc[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteSnapshot names the file from seed and s.VectorClock and writes it
// atomically, flag-complete, under dir (an instance's own
// snapshots/<instanceId> directory). It returns the chosen file name.
func WriteSnapshot(dir string, seed []byte, s Snapshot) (string, error) {
	payload, err := EncodeSnapshot(s)
	if err != nil {
		return "", err
	}
	name := storedir.SnapshotFileName(HashVectorClock(seed, s.VectorClock))
	if err := frame.WriteAtomicComplete(dir, name, payload); err != nil {
		return "", fmt.Errorf("packsnap: write snapshot %s/%s: %w", dir, name, err)
	}
	return name, nil
}
