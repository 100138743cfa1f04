package merge

import (
	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/crdt"
)

// FoldersNoteID is the reserved note id under which the folder index is
// stored. Modeling folders as "just another note" whose CRDT document's
// metadata map holds folderId -> parentId lets the folder index reuse
// every piece of C1-C5 machinery (framing, sequencing, packing,
// snapshotting, merging) instead of inventing a parallel subsystem — the
// same reasoning spec.md §9 applies to re-modeling the UI layer's
// duck-typed constructs as typed, CRDT-backed state.
var FoldersNoteID = uuid.MustParse("00000000-0000-0000-0000-00000000f01d")

// FolderIndex wraps a Document whose CRDT metadata map holds the plain
// mapping `folderId -> parentId` described in spec.md §9: "keep folders as
// a plain mapping folderId -> parentId?; cycles forbidden at insert time."
// A root folder is stored with an empty parent id; a folder that was never
// assigned, or was removed, has no live entry.
type FolderIndex struct {
	doc *Document
}

// NewFolderIndex wraps an already-loaded Document (normally the result of
// LoadNote(..., FoldersNoteID, ...)) as a FolderIndex.
func NewFolderIndex(doc *Document) *FolderIndex {
	return &FolderIndex{doc: doc}
}

// Parent returns folderID's current parent and whether it has one.
func (fi *FolderIndex) Parent(folderID string) (string, bool) {
	return fi.doc.CRDT.Meta(folderID)
}

// Folders returns every folder id with a live entry in the index.
func (fi *FolderIndex) Folders() []string {
	return fi.doc.CRDT.MetaKeys()
}

// Assign sets folderID's parent to parentID (empty string for "no
// parent" — a root folder), rejecting the assignment at insert time if it
// would create a cycle (ErrFolderCycle), exactly as spec.md §9 requires.
// ts is the LWW timestamp for this assignment; concurrent assignments of
// the same folder's parent converge on the one with the larger (ts,
// actor) pair, same as any other metadata field — actor is the
// underlying Doc's own id, fixed at construction, not a per-call argument.
func (fi *FolderIndex) Assign(folderID, parentID string, ts int64) error {
	if parentID != "" && fi.wouldCycle(folderID, parentID) {
		return ErrFolderCycle
	}
	fi.doc.CRDT.SetMeta(folderID, parentID, ts)
	return nil
}

// Remove tombstones folderID's parent entry, detaching it from the tree
// without reparenting its children: their own entries are left as they
// are and still name folderID as their parent.
func (fi *FolderIndex) Remove(folderID string, ts int64) {
	fi.doc.CRDT.DeleteMeta(folderID, ts)
}

// wouldCycle reports whether setting folderID's parent to parentID would
// create a cycle, by walking parentID's own ancestor chain looking for
// folderID.
func (fi *FolderIndex) wouldCycle(folderID, parentID string) bool {
	if folderID == parentID {
		return true
	}
	seen := map[string]bool{folderID: true}
	cur := parentID
	for cur != "" {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		next, ok := fi.doc.CRDT.Meta(cur)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// EncodeUpdate returns the bytes for the edits made since the last call,
// for persisting through the same update-store write path a regular note
// uses.
func (fi *FolderIndex) EncodeUpdate() []byte {
	return fi.doc.CRDT.EncodeUpdate()
}

// CRDTDoc exposes the underlying crdt.Doc for callers (tests, the sync
// loop) that need EncodeStateAsUpdate for snapshotting.
func (fi *FolderIndex) CRDTDoc() *crdt.Doc {
	return fi.doc.CRDT
}
