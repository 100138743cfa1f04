package syncloop

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/drewcsillag/notecove/internal/activitylog"
	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/crdt"
	"github.com/drewcsillag/notecove/internal/merge"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
	"github.com/drewcsillag/notecove/internal/updatestore"
)

// maxConcurrentMerges bounds a poll's per-note fan-out (spec.md §4.6:
// "merges for different notes may interleave"), so a flood of peer
// deliveries across hundreds of notes never spawns hundreds of goroutines
// at once.
const maxConcurrentMerges = 8

// loopConfig carries everything a Loop needs at construction. A struct
// because the field count (mirroring the teacher's EngineConfig pattern)
// is too large for positional parameters.
type loopConfig struct {
	SD              storedir.SD
	InstanceID      uuid.UUID
	ProfileID       uuid.UUID
	Logger          *slog.Logger
	Clock           clock.Clock
	Thresholds      packsnap.Thresholds
	PollInterval    time.Duration
	PollJitter      time.Duration
	FileReadTimeout time.Duration
	UseFsnotify     bool
	Bookkeeping     *bookkeeping
}

// pendingUpdate is an own-instance write the loop failed to persist and
// will retry — spec.md §4.6's "write errors on own files: surfaced to
// embedder as recoverable; document retains the pending update and
// retries on next operation."
type pendingUpdate struct {
	seq     int64
	payload []byte
}

// Loop is the single cooperative task per open Storage Directory (spec.md
// §4.6 and §5: "one cooperative task per SD; no shared mutable state
// between SDs"). All of its exported methods are safe to call from
// multiple goroutines; internally, merges for one note are serialized by
// noteLock while merges for different notes may run concurrently, exactly
// as §5 requires.
type Loop struct {
	cfg          loopConfig
	snapshotSeed []byte

	mu      sync.Mutex
	docs    map[uuid.UUID]*merge.Document
	subs    map[uuid.UUID][]subscription
	nextSub int
	ownSeq  map[uuid.UUID]int64
	pending   map[uuid.UUID][]pendingUpdate
	folders   *merge.FolderIndex
	folderDoc *merge.Document

	noteLocks   sync.Map // uuid.UUID -> *sync.Mutex
	watcher     *fsnotify.Watcher
	wakeCh      chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
	saveFailure func(noteID uuid.UUID, err error)
}

type subscription struct {
	id int
	cb func(*merge.Document)
}

// newLoop constructs a Loop and loads its folder index. It does not start
// the poll loop — call Start for that.
func newLoop(cfg loopConfig) (*Loop, error) {
	l := &Loop{
		cfg:          cfg,
		snapshotSeed: cfg.SD.ID[:],
		docs:         make(map[uuid.UUID]*merge.Document),
		subs:         make(map[uuid.UUID][]subscription),
		ownSeq:       make(map[uuid.UUID]int64),
		pending:      make(map[uuid.UUID][]pendingUpdate),
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	folderDoc, _, err := merge.LoadNote(cfg.Logger, cfg.SD, merge.FoldersNoteID, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("syncloop: load folder index: %w", err)
	}
	l.folderDoc = folderDoc
	l.folders = merge.NewFolderIndex(folderDoc)

	if cfg.UseFsnotify {
		if w, err := fsnotify.NewWatcher(); err == nil {
			if err := w.Add(cfg.SD.NotesDir()); err == nil {
				l.watcher = w
			} else {
				w.Close()
				cfg.Logger.Warn("syncloop: fsnotify watch failed, polling only", slog.String("error", err.Error()))
			}
		} else {
			cfg.Logger.Warn("syncloop: fsnotify unavailable, polling only", slog.String("error", err.Error()))
		}
	}

	return l, nil
}

// Start runs the poll loop in a new goroutine until Stop is called or ctx
// is cancelled.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// run is the loop body: poll, merge, notify, GC — repeating on a jittered
// interval until shutdown. Suspension points are exactly the poll timer
// and file I/O (§4.6), so ctx cancellation is checked only between ticks
// and between notes.
func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	defer l.drainFsnotify()

	for {
		l.pollOnce(ctx)

		wait := jitteredInterval(l.cfg.PollInterval, l.cfg.PollJitter)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-l.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		case <-l.wakeEvent():
			timer.Stop()
		}
	}
}

// wakeEvent returns the fsnotify-derived early-wake channel, or nil
// (blocks forever in a select) when fsnotify isn't in use — advisory
// only, per spec.md §4.6: a missed event never blocks convergence because
// the poll timer is still armed every cycle regardless.
func (l *Loop) wakeEvent() <-chan struct{} {
	if l.watcher == nil {
		return nil
	}
	return l.wakeCh
}

func (l *Loop) drainFsnotify() {
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// jitteredInterval returns base plus a uniformly random duration in
// [0, jitter), matching spec.md §4.6's "default 1-2s with jitter."
func jitteredInterval(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(jitter)))
}

// Stop signals the loop to exit and blocks until it has drained in-flight
// merges, flushed bookkeeping, and released its fsnotify handle (spec.md
// §4.6's cancellation contract).
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// pollOnce scans every note directory for an mtime advance since the last
// recorded cursor, then merges the changed set with bounded fan-out.
// Corrupt or transiently unreadable notes are isolated (P7): one note's
// failure never prevents others in the same pass from converging.
func (l *Loop) pollOnce(ctx context.Context) {
	if l.watcher != nil {
		l.drainWatcherEvents()
	}

	l.mergeFolderIndex()

	noteIDs, err := l.listNoteDirs()
	if err != nil {
		l.cfg.Logger.Warn("syncloop: list note directories failed", slog.String("error", err.Error()))
		return
	}

	var changed []uuid.UUID
	for _, id := range noteIDs {
		if l.noteChanged(id) {
			changed = append(changed, id)
		}
	}
	if len(changed) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentMerges)
	for _, id := range changed {
		noteID := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			l.safeMergeNote(gctx, noteID)
			return nil
		})
	}
	_ = g.Wait()
}

// drainWatcherEvents consumes any buffered fsnotify events and errors so
// the channels never back up. If any event was drained it leaves one token
// in wakeCh, so the wait after the current poll ends at once instead of
// running out the poll timer.
func (l *Loop) drainWatcherEvents() {
	for {
		select {
		case _, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			select {
			case l.wakeCh <- struct{}{}:
			default:
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// noteChanged reports whether noteID's directory tree has an mtime newer
// than its last recorded cursor, or has never been merged at all.
func (l *Loop) noteChanged(noteID uuid.UUID) bool {
	mt, err := noteDirMtime(l.cfg.SD.NoteDir(noteID))
	if err != nil {
		return false
	}
	cur, err := l.cfg.Bookkeeping.loadCursor(noteID)
	if err != nil {
		return true
	}
	return mt.UnixNano() > cur.LastMtime
}

// noteLockFor returns the per-note mutex serializing merges and edits for
// noteID, creating it on first use.
func (l *Loop) noteLockFor(noteID uuid.UUID) *sync.Mutex {
	v, _ := l.noteLocks.LoadOrStore(noteID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// safeMergeNote wraps mergeNote with panic recovery, mirroring the
// teacher's DriveRunner.run: a panic while merging one note is logged and
// contained, never crashing the Loop or other notes' progress.
func (l *Loop) safeMergeNote(_ context.Context, noteID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			l.cfg.Logger.Error("syncloop: panic during merge, note isolated",
				slog.String("note_id", noteID.String()),
				slog.Any("recovered", r),
			)
		}
	}()

	if err := l.mergeNote(noteID); err != nil {
		l.cfg.Logger.Warn("syncloop: merge failed, will retry next poll",
			slog.String("note_id", noteID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// mergeNote runs the merge engine for one note, updates the cached
// Document and bookkeeping cursor, fires subscriber callbacks only when
// the vector clock actually advanced (P2 idempotence), and opportunistically
// triggers GC.
func (l *Loop) mergeNote(noteID uuid.UUID) error {
	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc, report, err := merge.LoadNote(l.cfg.Logger, l.cfg.SD, noteID, l.cfg.InstanceID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	prev := l.docs[noteID]
	changed := prev == nil || !merge.Equal(prev.VectorClock, doc.VectorClock)
	l.docs[noteID] = doc
	subs := append([]subscription(nil), l.subs[noteID]...)
	l.mu.Unlock()

	l.flushPending(noteID, doc)

	mt, mtErr := noteDirMtime(l.cfg.SD.NoteDir(noteID))
	if mtErr == nil {
		_ = l.cfg.Bookkeeping.saveCursor(noteID, cursor{LastMtime: mt.UnixNano(), VectorClock: copyVC(doc.VectorClock)})
	}

	if report.QuarantinedFiles > 0 {
		l.cfg.Logger.Warn("syncloop: note has quarantined files",
			slog.String("note_id", noteID.String()),
			slog.Int("count", report.QuarantinedFiles),
		)
	}

	if changed {
		for _, s := range subs {
			s.cb(doc)
		}
	}

	l.maybeGC(noteID, doc)
	return nil
}

// folderIndex returns the current folder index under the loop's lock, so a
// concurrent mergeFolderIndex reload never races a reader mid-swap.
func (l *Loop) folderIndex() *merge.FolderIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.folders
}

// mergeFolderIndex re-runs the merge engine over the reserved folder-index
// note, picking up any peer folder assignments since the last pass. Local
// assignments are always persisted synchronously before AssignFolder
// returns, so reloading here never loses in-flight local state.
func (l *Loop) mergeFolderIndex() {
	lock := l.noteLockFor(merge.FoldersNoteID)
	lock.Lock()
	defer lock.Unlock()

	doc, _, err := merge.LoadNote(l.cfg.Logger, l.cfg.SD, merge.FoldersNoteID, l.cfg.InstanceID)
	if err != nil {
		l.cfg.Logger.Warn("syncloop: merge folder index failed", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	l.folderDoc = doc
	l.folders = merge.NewFolderIndex(doc)
	l.mu.Unlock()
}

// AssignFolder sets folderID's parent to parentID (empty for a root
// folder), persisting the change as an own-instance update on the reserved
// folder-index note. Rejects cycles per spec.md §9.
func (l *Loop) AssignFolder(folderID, parentID string) error {
	lock := l.noteLockFor(merge.FoldersNoteID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	doc := l.folderDoc
	idx := l.folders
	l.mu.Unlock()

	if err := idx.Assign(folderID, parentID, l.cfg.Clock.NowMillis()); err != nil {
		return err
	}
	return l.persistOwnUpdate(merge.FoldersNoteID, doc, idx.EncodeUpdate())
}

// RemoveFolder detaches folderID from its parent, persisting the change the
// same way AssignFolder does.
func (l *Loop) RemoveFolder(folderID string) error {
	lock := l.noteLockFor(merge.FoldersNoteID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	doc := l.folderDoc
	idx := l.folders
	l.mu.Unlock()

	idx.Remove(folderID, l.cfg.Clock.NowMillis())
	return l.persistOwnUpdate(merge.FoldersNoteID, doc, idx.EncodeUpdate())
}

// listNoteDirs returns every UUID-named entry directly under notes/,
// excluding the reserved folder-index note.
func (l *Loop) listNoteDirs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(l.cfg.SD.NotesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("syncloop: readdir %s: %w", l.cfg.SD.NotesDir(), err)
	}

	var ids []uuid.UUID
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		id, err := uuid.Parse(ent.Name())
		if err != nil || id == merge.FoldersNoteID {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// noteDirMtime returns the most recent modification time observed among a
// note directory's kind subdirectories (updates/, packs/, snapshots/,
// activity/) and their instance subdirectories — deep enough to notice
// any new, renamed, or deleted file without a full recursive walk every
// poll.
func noteDirMtime(noteDir string) (time.Time, error) {
	var latest time.Time

	root, err := os.Stat(noteDir)
	if err != nil {
		return time.Time{}, err
	}
	latest = root.ModTime()

	kinds, err := os.ReadDir(noteDir)
	if err != nil {
		return latest, nil
	}
	for _, kind := range kinds {
		if !kind.IsDir() {
			continue
		}
		kindPath := filepath.Join(noteDir, kind.Name())
		if info, err := os.Stat(kindPath); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		instances, err := os.ReadDir(kindPath)
		if err != nil {
			continue
		}
		for _, inst := range instances {
			instPath := filepath.Join(kindPath, inst.Name())
			if info, err := os.Stat(instPath); err == nil && info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
	}
	return latest, nil
}

func copyVC(vc map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// getOrLoadDoc returns the cached Document for noteID, loading it via the
// merge engine on first access.
func (l *Loop) getOrLoadDoc(noteID uuid.UUID) (*merge.Document, error) {
	l.mu.Lock()
	doc, ok := l.docs[noteID]
	l.mu.Unlock()
	if ok {
		return doc, nil
	}

	doc, _, err := merge.LoadNote(l.cfg.Logger, l.cfg.SD, noteID, l.cfg.InstanceID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.docs[noteID] = doc
	l.mu.Unlock()
	return doc, nil
}

// nextOwnSeq returns the next sequence number to assign for noteID,
// advancing an in-memory counter rather than re-deriving it from the
// vector clock on every call. This matters because a failed write must
// not cause the following edit to reuse the same sequence number: the
// counter advances the instant a sequence is reserved, independent of
// whether the write that claims it ever succeeds.
func (l *Loop) nextOwnSeq(noteID uuid.UUID, doc *merge.Document) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq, ok := l.ownSeq[noteID]
	if !ok {
		seq = doc.NextSequence(l.cfg.InstanceID)
	}
	l.ownSeq[noteID] = seq + 1
	return seq
}

// persistOwnUpdate writes payload as noteID's next own-instance update,
// appends the activity log entry, and folds the new sequence into doc's
// vector clock. A write failure queues the update for retry and returns
// ErrSaveFailed wrapped with the underlying cause; the in-memory
// document's CRDT state already reflects the edit either way, matching
// spec.md §4.6's "in-memory document retains the pending update."
func (l *Loop) persistOwnUpdate(noteID uuid.UUID, doc *merge.Document, payload []byte) error {
	seq := l.nextOwnSeq(noteID, doc)
	dir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)

	if err := updatestore.WriteOwn(dir, seq, payload); err != nil {
		l.mu.Lock()
		l.pending[noteID] = append(l.pending[noteID], pendingUpdate{seq: seq, payload: payload})
		l.mu.Unlock()
		if l.saveFailure != nil {
			l.saveFailure(noteID, err)
		}
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := l.appendActivity(noteID, seq); err != nil {
		l.cfg.Logger.Warn("syncloop: activity log append failed, update store remains authoritative",
			slog.String("note_id", noteID.String()), slog.Int64("sequence", seq), slog.String("error", err.Error()))
	}

	doc.Observe(l.cfg.InstanceID, seq)
	return nil
}

// flushPending retries any of noteID's writes that previously failed,
// in sequence order. mergeNote calls it on each poll of noteID; the edit
// methods do not call it.
func (l *Loop) flushPending(noteID uuid.UUID, doc *merge.Document) {
	l.mu.Lock()
	queue := l.pending[noteID]
	l.mu.Unlock()
	if len(queue) == 0 {
		return
	}

	dir := l.cfg.SD.UpdatesDir(noteID, l.cfg.InstanceID)
	var remaining []pendingUpdate
	for _, p := range queue {
		if err := updatestore.WriteOwn(dir, p.seq, p.payload); err != nil {
			remaining = append(remaining, p)
			continue
		}
		_ = l.appendActivity(noteID, p.seq)
		doc.Observe(l.cfg.InstanceID, p.seq)
	}

	l.mu.Lock()
	l.pending[noteID] = remaining
	l.mu.Unlock()
}

// appendActivity records seq in this instance's activity log for noteID.
// The activity directory is a sibling of updates/packs/snapshots that
// storedir never pre-creates, so the first update for a brand-new note
// (including the reserved folder-index note) needs it created here before
// activitylog.Append can open the file.
func (l *Loop) appendActivity(noteID uuid.UUID, seq int64) error {
	dir := l.cfg.SD.ActivityDir(noteID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("syncloop: create activity dir: %w", err)
	}
	path := filepath.Join(dir, storedir.ActivityLogName(l.cfg.ProfileID, l.cfg.InstanceID))
	return activitylog.Append(path, activitylog.Entry{NoteID: noteID, ProfileID: l.cfg.ProfileID, Sequence: seq})
}

// ApplyEdit folds an embedder-produced CRDT update into noteID's document
// and persists it as this instance's next owned update, broadcasting the
// change to subscribers on success.
func (l *Loop) ApplyEdit(noteID uuid.UUID, updateBytes []byte) error {
	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return fmt.Errorf("syncloop: apply edit %s: %w", noteID, err)
	}

	if err := doc.ApplyLocalEdit(updateBytes); err != nil {
		return fmt.Errorf("syncloop: apply edit %s: decode: %w", noteID, err)
	}

	if err := l.persistOwnUpdate(noteID, doc, updateBytes); err != nil {
		return err
	}

	l.mu.Lock()
	subs := append([]subscription(nil), l.subs[noteID]...)
	l.mu.Unlock()
	for _, s := range subs {
		s.cb(doc)
	}

	l.maybeGC(noteID, doc)
	return nil
}

// CreateNote creates a new note with an optional initial body and title,
// persists its first update, and returns its id.
func (l *Loop) CreateNote(body, title string) (uuid.UUID, error) {
	noteID := uuid.New()

	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc := &merge.Document{
		NoteID:      noteID,
		CRDT:        crdt.NewDoc(l.cfg.InstanceID.String()),
		VectorClock: map[string]int64{},
	}
	doc.CRDT.InsertText(nil, body)
	doc.CRDT.SetMeta(metaKeyCreated, fmt.Sprintf("%d", l.cfg.Clock.NowMillis()), l.cfg.Clock.NowMillis())
	if title != "" {
		doc.CRDT.SetMeta(metaKeyTitle, title, l.cfg.Clock.NowMillis())
	}

	payload := doc.CRDT.EncodeUpdate()

	l.mu.Lock()
	l.docs[noteID] = doc
	l.mu.Unlock()

	if err := l.persistOwnUpdate(noteID, doc, payload); err != nil {
		return uuid.Nil, err
	}
	return noteID, nil
}

// EditText appends text to the end of noteID's current body and persists
// the resulting update as this instance's next owned sequence.
func (l *Loop) EditText(noteID uuid.UUID, text string) error {
	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownNote, noteID)
	}

	var after crdt.PosKey
	if keys := doc.CRDT.Keys(); len(keys) > 0 {
		after = keys[len(keys)-1]
	}
	doc.CRDT.InsertText(after, text)

	payload := doc.CRDT.EncodeUpdate()
	return l.persistOwnUpdate(noteID, doc, payload)
}

// DeleteNote soft-deletes noteID (spec.md §3: "tombstoned but never
// hard-removed without a purge step outside the core").
func (l *Loop) DeleteNote(noteID uuid.UUID) error {
	lock := l.noteLockFor(noteID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return err
	}
	doc.CRDT.SetMeta(metaKeyDeleted, "true", l.cfg.Clock.NowMillis())
	payload := doc.CRDT.EncodeUpdate()
	return l.persistOwnUpdate(noteID, doc, payload)
}

// Subscribe registers cb to fire on every merged state change for noteID
// (spec.md §6's `subscribe`). The returned func unsubscribes.
func (l *Loop) Subscribe(noteID uuid.UUID, cb func(*merge.Document)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[noteID] = append(l.subs[noteID], subscription{id: id, cb: cb})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := l.subs[noteID]
		for i, s := range subs {
			if s.id == id {
				l.subs[noteID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// ListNotes returns a summary of every known note, loading any not yet
// cached.
func (l *Loop) ListNotes() ([]NoteInfo, error) {
	ids, err := l.listNoteDirs()
	if err != nil {
		return nil, err
	}

	infos := make([]NoteInfo, 0, len(ids))
	for _, id := range ids {
		info, err := l.GetInfo(id)
		if err != nil {
			l.cfg.Logger.Warn("syncloop: skipping unreadable note in listing",
				slog.String("note_id", id.String()), slog.String("error", err.Error()))
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// GetInfo returns noteID's full summary (spec.md §6's `getInfo`).
func (l *Loop) GetInfo(noteID uuid.UUID) (NoteInfo, error) {
	doc, err := l.getOrLoadDoc(noteID)
	if err != nil {
		return NoteInfo{}, fmt.Errorf("%w: %s", ErrUnknownNote, noteID)
	}
	return l.buildNoteInfo(doc), nil
}
