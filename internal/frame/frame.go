// Package frame implements the single-byte-flag envelope that every file
// under a Storage Directory is wrapped in: byte 0 is 0x00 for a file a
// replicator is still in the middle of copying, or 0x01 once the payload is
// whole. Collapsing "is this file torn?" to one byte check means the rest
// of the module never needs length prefixes or checksums to detect a
// partial cloud-sync delivery.
package frame

import "errors"

const (
	// FlagIncomplete marks a file a writer (or a replicator mid-copy) has
	// not finished producing. Readers must treat it as absent.
	FlagIncomplete byte = 0x00
	// FlagComplete marks a file whose payload is whole.
	FlagComplete byte = 0x01
)

// ErrIncomplete is returned by Decode when byte 0 is FlagIncomplete. It is
// a transient condition: the caller should skip the file this pass and
// retry on the next poll.
var ErrIncomplete = errors.New("frame: incomplete")

// ErrCorrupt is returned by Decode when byte 0 is neither FlagIncomplete
// nor FlagComplete. It is fatal for that file: the merge engine quarantines
// it rather than retrying.
var ErrCorrupt = errors.New("frame: corrupt flag byte")

// Encode wraps payload as a complete frame.
func Encode(payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = FlagComplete
	copy(out[1:], payload)
	return out
}

// EncodePartial wraps payload as an incomplete frame, for simulating torn
// replicator delivery.
func EncodePartial(payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = FlagIncomplete
	copy(out[1:], payload)
	return out
}

// Decode splits a raw file's bytes into its payload. It returns
// ErrIncomplete or ErrCorrupt for a file that isn't safely readable yet;
// callers must not treat either as their own I/O failure — both are
// classification results, not errors in the Go sense of "something went
// wrong here."
func Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrIncomplete
	}
	switch raw[0] {
	case FlagIncomplete:
		return nil, ErrIncomplete
	case FlagComplete:
		return raw[1:], nil
	default:
		return nil, ErrCorrupt
	}
}
