package syncloop

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/merge"
	"github.com/drewcsillag/notecove/internal/packsnap"
)

// Well-known metadata keys stored in a note's CRDT meta map (the same
// LWWMap the CRDT doc uses for any scalar field).
const (
	metaKeyTitle   = "title"
	metaKeyPinned  = "pinned"
	metaKeyDeleted = "deleted"
	metaKeyFolder  = "folder"
	metaKeyCreated = "created"
)

// titleMaxRunes bounds the display title derived from a note's body text.
// Unicode-safe truncation (rune count, not byte count) matters here the
// same way it does for the teacher's display-name handling — cutting a
// multi-byte rune in half produces invalid UTF-8 in the title shown to
// the operator.
const titleMaxRunes = 80

// deriveTitle computes a note's display title from its body text: the
// first non-empty line, NFC-normalized, truncated to titleMaxRunes runes.
// An explicit "title" metadata field set by the embedder always wins over
// this derivation (see buildNoteInfo in notes.go).
func deriveTitle(body string) string {
	body = norm.NFC.String(body)

	line := ""
	for _, l := range strings.Split(body, "\n") {
		if l != "" {
			line = l
			break
		}
	}

	if utf8.RuneCountInString(line) <= titleMaxRunes {
		return line
	}

	out := make([]rune, 0, titleMaxRunes)
	for _, r := range line {
		if len(out) >= titleMaxRunes {
			break
		}
		out = append(out, r)
	}
	return string(out)
}

// NoteInfo is the embedder-facing summary named by spec.md §6's
// `listNotes`/`getInfo`.
type NoteInfo struct {
	ID              uuid.UUID
	Title           string
	FolderID        string
	Created         time.Time
	Modified        time.Time
	VectorClock     map[string]int64
	DocumentHash    string
	CRDTUpdateCount int
	SnapshotCount   int
	PackCount       int
	TotalFileSize   int64
	Deleted         bool
	Pinned          bool
}

// buildNoteInfo derives a NoteInfo snapshot from a merged Document: display
// title (explicit metadata wins over a derived-from-body fallback), folder
// placement from the shared folder index, created/modified timestamps
// parsed from metadata, and disk-usage counters from a best-effort scan of
// the note's own directory tree.
func (l *Loop) buildNoteInfo(doc *merge.Document) NoteInfo {
	info := NoteInfo{
		ID:           doc.NoteID,
		VectorClock:  copyVC(doc.VectorClock),
		DocumentHash: packsnap.HashVectorClock(l.snapshotSeed, doc.VectorClock),
	}

	if title, ok := doc.CRDT.Meta(metaKeyTitle); ok && title != "" {
		info.Title = title
	} else {
		info.Title = deriveTitle(doc.CRDT.Text())
	}

	if folderID, ok := l.folderIndex().Parent(doc.NoteID.String()); ok {
		info.FolderID = folderID
	}

	if createdStr, ok := doc.CRDT.Meta(metaKeyCreated); ok {
		if ms, err := strconv.ParseInt(createdStr, 10, 64); err == nil {
			info.Created = time.UnixMilli(ms)
		}
	}

	if deletedStr, ok := doc.CRDT.Meta(metaKeyDeleted); ok {
		info.Deleted = deletedStr == "true"
	}
	if pinnedStr, ok := doc.CRDT.Meta(metaKeyPinned); ok {
		info.Pinned = pinnedStr == "true"
	}

	usage := scanNoteUsage(l.cfg.Logger, l.cfg.SD.NoteDir(doc.NoteID))
	info.CRDTUpdateCount = usage.updates
	info.PackCount = usage.packs
	info.SnapshotCount = usage.snapshots
	info.TotalFileSize = usage.totalBytes
	info.Modified = usage.latestMtime

	return info
}

// NoteContent is the read-only body-plus-metadata view exposed to the web
// bridge's `GET /notes/{id}`. It is a snapshot, not a live handle onto the
// CRDT document — the bridge has no write path.
type NoteContent struct {
	NoteInfo
	Body string
}

// GetContent returns noteID's current text body alongside its NoteInfo
// summary.
func (l *Loop) GetContent(noteID uuid.UUID) (NoteContent, error) {
	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return NoteContent{}, fmt.Errorf("%w: %s", ErrUnknownNote, noteID)
	}
	return NoteContent{NoteInfo: l.buildNoteInfo(doc), Body: doc.CRDT.Text()}, nil
}

// noteUsage summarizes a note directory's on-disk footprint for NoteInfo.
type noteUsage struct {
	updates, packs, snapshots int
	totalBytes                int64
	latestMtime               time.Time
}

// scanNoteUsage walks a note directory's kind/instance subdirectories
// counting files and bytes. Any error partway through yields a partial,
// best-effort result rather than failing the whole getInfo call — disk
// usage is informational, never authoritative.
func scanNoteUsage(logger *slog.Logger, noteDir string) noteUsage {
	var usage noteUsage

	kinds, err := os.ReadDir(noteDir)
	if err != nil {
		return usage
	}
	for _, kind := range kinds {
		if !kind.IsDir() {
			continue
		}
		kindPath := filepath.Join(noteDir, kind.Name())
		instances, err := os.ReadDir(kindPath)
		if err != nil {
			continue
		}
		for _, inst := range instances {
			instPath := filepath.Join(kindPath, inst.Name())
			files, err := os.ReadDir(instPath)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				info, err := f.Info()
				if err != nil {
					logger.Debug("syncloop: stat failed during usage scan",
						slog.String("path", filepath.Join(instPath, f.Name())), slog.String("error", err.Error()))
					continue
				}
				usage.totalBytes += info.Size()
				if info.ModTime().After(usage.latestMtime) {
					usage.latestMtime = info.ModTime()
				}
				switch kind.Name() {
				case "updates":
					usage.updates++
				case "packs":
					usage.packs++
				case "snapshots":
					usage.snapshots++
				}
			}
		}
	}
	return usage
}
