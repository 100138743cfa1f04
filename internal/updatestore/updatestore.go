// Package updatestore implements the per-note, per-instance directory of
// individual CRDT update files named by monotonic sequence number: the
// write path an owning instance uses to persist its own edits, and the
// read path a merge pass uses to pick up whatever an owner (self or peer)
// has published so far.
package updatestore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/storedir"
)

// ErrSequenceGap is returned by ValidateContiguous when an instance's own
// update/pack sequence numbers do not form a contiguous prefix starting at
// 0. This is the "invariant-violation" error kind: fatal, and the instance
// must refuse further writes until an operator investigates.
var ErrSequenceGap = errors.New("updatestore: gap in own sequence numbers")

// Update is one decoded, flag-complete CRDT update read from the store.
type Update struct {
	Sequence int64
	Payload  []byte
}

// WriteOwn writes a new update file for sequence seq under dir (an
// instance's own updates/<instanceId> directory), atomically and flag-
// complete. Sequence numbers are chosen by the caller as
// max(observed-self)+1; ties are impossible because only the owning
// instance ever writes into dir.
func WriteOwn(dir string, seq int64, payload []byte) error {
	if seq < 0 {
		return fmt.Errorf("updatestore: refusing to write negative sequence %d", seq)
	}
	name := storedir.UpdateFileName(seq)
	if err := frame.WriteAtomicComplete(dir, name, payload); err != nil {
		return fmt.Errorf("updatestore: write %s/%s: %w", dir, name, err)
	}
	return nil
}

// ListResult is the outcome of one directory scan.
type ListResult struct {
	// Updates holds every update that decoded successfully, sorted by
	// sequence ascending.
	Updates []Update
	// Incomplete holds the sequence numbers of files observed with the
	// incomplete flag (or that vanished between listing and reading) —
	// transient; retry on the next poll.
	Incomplete []int64
	// Quarantined holds the sequence numbers of files whose frame flag
	// byte was neither complete nor incomplete. Each has already been
	// renamed with frame.QuarantineSuffix by the time List returns.
	Quarantined []int64
}

// List scans dir (a note's updates/<instanceId> directory, owned by self
// or a peer) and classifies every entry. Names with a recognized
// temp/quarantine suffix are skipped silently. Other names that fail the
// naming policy (non-numeric, negative, leading zeros) are skipped too, and
// all such skips in one scan are reported as a single warning line rather
// than one per file, so a chaotic directory doesn't flood the log.
func List(logger *slog.Logger, dir string) (ListResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ListResult{}, nil
		}
		return ListResult{}, fmt.Errorf("updatestore: readdir %s: %w", dir, err)
	}

	var result ListResult
	skipped := 0

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if frame.IsTempName(name) || frame.IsQuarantined(name) {
			continue
		}
		seq, ok := parseSequenceName(name)
		if !ok {
			skipped++
			continue
		}

		payload, err := frame.ReadFrame(dir, name)
		switch {
		case err == nil:
			result.Updates = append(result.Updates, Update{Sequence: seq, Payload: payload})
		case errors.Is(err, frame.ErrIncomplete):
			result.Incomplete = append(result.Incomplete, seq)
		case errors.Is(err, frame.ErrCorrupt):
			if qerr := frame.Quarantine(dir, name); qerr != nil {
				return result, fmt.Errorf("updatestore: quarantine %s/%s: %w", dir, name, qerr)
			}
			logger.Error("updatestore: quarantined corrupt update",
				slog.String("dir", dir),
				slog.Int64("sequence", seq),
			)
			result.Quarantined = append(result.Quarantined, seq)
		default:
			return result, fmt.Errorf("updatestore: read %s/%s: %w", dir, name, err)
		}
	}

	if skipped > 0 {
		logger.Warn("updatestore: skipped entries with non-conforming names",
			slog.String("dir", dir),
			slog.Int("count", skipped),
		)
	}

	sort.Slice(result.Updates, func(i, j int) bool {
		return result.Updates[i].Sequence < result.Updates[j].Sequence
	})
	return result, nil
}

// parseSequenceName parses "<n>.yjson" into its sequence number. Leading
// zeros, signs, and any non-decimal name are rejected.
func parseSequenceName(name string) (int64, bool) {
	const ext = ".yjson"
	if len(name) <= len(ext) || name[len(name)-len(ext):] != ext {
		return 0, false
	}
	digits := name[:len(name)-len(ext)]
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Range is an inclusive sequence range, as covered by one pack file.
type Range struct {
	First, Last int64
}

// ValidateContiguous checks invariant I1: the union of standalone update
// sequence numbers and pack ranges for one (note, instance) must form a
// contiguous prefix [0..N] (or be empty). It returns ErrSequenceGap
// wrapped with the offending boundary if a gap is found.
func ValidateContiguous(seqs []int64, packRanges []Range) error {
	type interval struct{ first, last int64 }
	intervals := make([]interval, 0, len(seqs)+len(packRanges))
	for _, s := range seqs {
		intervals = append(intervals, interval{s, s})
	}
	for _, r := range packRanges {
		intervals = append(intervals, interval{r.First, r.Last})
	}
	if len(intervals) == 0 {
		return nil
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].first < intervals[j].first })

	if intervals[0].first != 0 {
		return fmt.Errorf("%w: first sequence is %d, expected 0", ErrSequenceGap, intervals[0].first)
	}
	covered := intervals[0].last
	for _, iv := range intervals[1:] {
		if iv.first > covered+1 {
			return fmt.Errorf("%w: gap between %d and %d", ErrSequenceGap, covered, iv.first)
		}
		if iv.last > covered {
			covered = iv.last
		}
	}
	return nil
}

// NextOwnSequence returns the next sequence number an owning instance
// should assign, given the highest sequence already covered by its own
// updates and packs (-1 if none).
func NextOwnSequence(highestCovered int64) int64 {
	return highestCovered + 1
}
