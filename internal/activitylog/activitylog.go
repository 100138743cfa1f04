// Package activitylog implements the per-(note, profile, instance)
// append-only index described by the core: a small, best-effort log of
// which update sequence numbers an instance has written for a note. Losing
// this file costs only replay time at next startup — the update store
// directory remains the authoritative record of what was actually written.
package activitylog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Entry is one parsed activity-log line.
type Entry struct {
	NoteID    uuid.UUID
	ProfileID uuid.UUID
	Sequence  int64
}

// Append adds one line to the log at path, creating it if necessary, and
// fsyncs before returning. The log is opened, written, and closed on every
// call rather than held open across calls, since appends happen at most
// once per locally emitted update — far less often than polls.
func Append(path string, e Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("activitylog: open %s: %w", path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s|%s|%d\n", e.NoteID, e.ProfileID, e.Sequence)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("activitylog: append %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("activitylog: fsync %s: %w", path, err)
	}
	return nil
}

// Replay streams every line in the log at path, parsing both the canonical
// "|"-delimited grammar this package writes and the legacy "_"-delimited
// grammar some pre-existing logs use. Malformed lines are skipped with a
// warning log line rather than aborting replay — a torn trailing line from
// a crash mid-append is expected, not exceptional.
//
// A missing file is not an error: it replays as zero entries, the normal
// state for a note an instance has never written to.
func Replay(logger *slog.Logger, path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("activitylog: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, ok := parseLine(line)
		if !ok {
			logger.Warn("activitylog: skipping malformed line",
				slog.String("path", path),
				slog.Int("line", lineNo),
			)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("activitylog: scan %s: %w", path, err)
	}
	return entries, nil
}

// parseLine parses one line in either the canonical "noteId|profileId|seq"
// grammar or the legacy "_"-delimited grammar. The legacy grammar has been
// observed in both a 2-field (noteId_seq, profileId omitted) and 3-field
// (noteId_profileId_seq) shape, so both are accepted; a 2-field legacy
// entry's ProfileID decodes as uuid.Nil.
func parseLine(line string) (Entry, bool) {
	if fields := strings.Split(line, "|"); len(fields) == 3 {
		return entryFromFields(fields[0], fields[1], fields[2])
	}
	fields := strings.Split(line, "_")
	switch len(fields) {
	case 3:
		return entryFromFields(fields[0], fields[1], fields[2])
	case 2:
		return entryFromFields(fields[0], uuid.Nil.String(), fields[1])
	default:
		return Entry{}, false
	}
}

func entryFromFields(noteIDStr, profileIDStr, seqStr string) (Entry, bool) {
	noteID, err := uuid.Parse(noteIDStr)
	if err != nil {
		return Entry{}, false
	}
	profileID, err := uuid.Parse(profileIDStr)
	if err != nil {
		return Entry{}, false
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || seq < 0 {
		return Entry{}, false
	}
	return Entry{NoteID: noteID, ProfileID: profileID, Sequence: seq}, true
}

// HighestSequence returns the maximum Sequence across entries, or -1 if
// entries is empty. Callers use this to resume local sequence numbering
// without waiting to relist the update store directory, though the update
// store remains authoritative if the two disagree.
func HighestSequence(entries []Entry) int64 {
	highest := int64(-1)
	for _, e := range entries {
		if e.Sequence > highest {
			highest = e.Sequence
		}
	}
	return highest
}

// RewriteLegacy reads every entry in the log at path (accepting both
// grammars) and rewrites the file from scratch using only the canonical
// "|"-delimited grammar. It is off by default; operators with activity
// logs predating the canonical grammar's adoption may opt into it once,
// per the design notes' "one-shot rewrite on first open is permissible but
// not required."
func RewriteLegacy(logger *slog.Logger, path string) error {
	entries, err := Replay(logger, path)
	if err != nil {
		return err
	}

	tmp := path + ".migration"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("activitylog: create %s: %w", tmp, err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(f, "%s|%s|%d\n", e.NoteID, e.ProfileID, e.Sequence); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("activitylog: write %s: %w", tmp, err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("activitylog: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("activitylog: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
