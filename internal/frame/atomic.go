package frame

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// tempSuffixes are the name suffixes every directory lister in this module
// filters out before treating an entry as a real frame file. ".tmp" is the
// in-progress atomic-write staging name; ".migration" is reserved for any
// future on-disk format migration that needs the same staging discipline.
var tempSuffixes = []string{".tmp", ".migration"}

// IsTempName reports whether name is a staging artifact that should never
// be treated as a real on-disk frame.
func IsTempName(name string) bool {
	for _, suf := range tempSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// IsQuarantined reports whether name is a file the merge engine has already
// quarantined for decode failure.
func IsQuarantined(name string) bool {
	return strings.HasSuffix(name, QuarantineSuffix)
}

// QuarantineSuffix is appended to a file's name when the merge engine
// determines its payload is corrupt and isolates it from future merge
// attempts.
const QuarantineSuffix = ".corrupt"

// WriteAtomicComplete frame-encodes payload as complete and writes it to
// dir/name using the temp-file-then-rename discipline: a sibling temp file
// is written and fsynced, then renamed over the final name. Readers never
// observe a half-written final file.
func WriteAtomicComplete(dir, name string, payload []byte) error {
	return writeAtomic(dir, name, Encode(payload))
}

// WriteAtomicRaw writes an already-framed byte sequence atomically. It
// exists for callers (packsnap, the fuzz harness) that build the frame
// themselves rather than calling Encode directly.
func WriteAtomicRaw(dir, name string, framed []byte) error {
	return writeAtomic(dir, name, framed)
}

func writeAtomic(dir, name string, framed []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("frame: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("frame: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(framed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("frame: write temp %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("frame: fsync temp %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("frame: close temp %s: %w", tmpName, err)
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("frame: rename %s to %s: %w", tmpName, final, err)
	}
	return nil
}

// ReadFrame reads dir/name and decodes it. It returns ErrIncomplete or
// ErrCorrupt from Decode unchanged; a missing file is reported as
// ErrIncomplete too, since a not-yet-arrived replicator delivery is
// indistinguishable from a file mid-copy from the reader's point of view.
func ReadFrame(dir, name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIncomplete
		}
		return nil, fmt.Errorf("frame: read %s: %w", filepath.Join(dir, name), err)
	}
	return Decode(raw)
}

// Quarantine renames dir/name to dir/name+QuarantineSuffix so future merge
// passes skip it without needing to re-decode and re-fail it every poll.
func Quarantine(dir, name string) error {
	src := filepath.Join(dir, name)
	dst := src + QuarantineSuffix
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("frame: quarantine %s: %w", src, err)
	}
	return nil
}
