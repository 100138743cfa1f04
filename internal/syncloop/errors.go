// Package syncloop implements the sync loop (spec.md §4.6): the single
// cooperative task per open Storage Directory that polls note directories
// for changes, invokes the merge engine, coordinates pack/snapshot GC, and
// exposes the embedder API (open/close/subscribe/applyEdit/listNotes/
// getInfo) named in spec.md §6.
package syncloop

import "errors"

// ErrIOFatal is the "io-fatal" error kind: the SD root disappeared or
// became read-only. The loop stops after flushing once this is observed;
// it is surfaced to the embedder as a non-recoverable state.
var ErrIOFatal = errors.New("syncloop: sd root is unreachable")

// ErrSaveFailed is the recoverable "save failed" event of spec.md §4.6: a
// write error on the instance's own files. The in-memory document keeps
// the pending update and the caller should retry ApplyEdit.
var ErrSaveFailed = errors.New("syncloop: save failed, edit retained in memory")

// ErrClosed is returned by Handle methods called after Close.
var ErrClosed = errors.New("syncloop: handle is closed")

// ErrUnknownNote is returned when an operation names a note id the SD has
// never seen.
var ErrUnknownNote = errors.New("syncloop: unknown note")
