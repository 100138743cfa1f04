package syncloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/config"
	"github.com/drewcsillag/notecove/internal/merge"
	"github.com/drewcsillag/notecove/internal/packsnap"
	"github.com/drewcsillag/notecove/internal/storedir"
)

// Manager opens and owns one Loop per Storage Directory, embodying spec.md
// §5's "no shared mutable state between SDs, beyond process-level
// resources like file descriptor limits." Each Handle it returns is bound
// to exactly one SD and is safe for concurrent use by the embedder.
type Manager struct {
	instanceID uuid.UUID
	profileID  uuid.UUID
	logger     *slog.Logger
	clock      clock.Clock

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle // keyed by SD id
}

// NewManager constructs a Manager for one running process. instanceID
// should be generated once per install and persisted by the embedder (the
// CLI keeps it in its config file via config.EnsureInstance); profileID comes from
// config.EnsureProfile.
func NewManager(instanceID, profileID uuid.UUID, logger *slog.Logger, clk clock.Clock) *Manager {
	return &Manager{
		instanceID: instanceID,
		profileID:  profileID,
		logger:     logger,
		clock:      clk,
		handles:    make(map[uuid.UUID]*Handle),
	}
}

// Handle is the embedder-facing API surface named by spec.md §6: open,
// close, subscribe, applyEdit, listNotes, getInfo — bound to one open SD.
type Handle struct {
	sd   storedir.SD
	loop *Loop
	bk   *bookkeeping

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the SD at path and starts its sync
// loop, using thresholds and scheduling parameters from sdCfg/syncCfg.
func (m *Manager) Open(ctx context.Context, path string, sdCfg config.SDConfig, syncCfg config.SyncConfig, bkPath string) (*Handle, error) {
	var sdID uuid.UUID
	if sdCfg.ID != "" {
		parsed, err := uuid.Parse(sdCfg.ID)
		if err != nil {
			return nil, fmt.Errorf("syncloop: parse configured sd id %q: %w", sdCfg.ID, err)
		}
		sdID = parsed
	}

	sd, err := storedir.Open(path, func() uuid.UUID {
		if sdID != uuid.Nil {
			return sdID
		}
		return uuid.New()
	})
	if err != nil {
		return nil, fmt.Errorf("syncloop: open sd %s: %w", path, err)
	}

	m.mu.Lock()
	if existing, ok := m.handles[sd.ID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	bk, err := openBookkeeping(ctx, bkPath, m.logger)
	if err != nil {
		return nil, err
	}

	thresholds := packsnap.Thresholds{Pack: sdCfg.PackThreshold, Snapshot: sdCfg.SnapshotThreshold}
	if thresholds.Pack <= 0 {
		thresholds.Pack = packsnap.DefaultThresholds().Pack
	}
	if thresholds.Snapshot <= 0 {
		thresholds.Snapshot = packsnap.DefaultThresholds().Snapshot
	}

	loop, err := newLoop(loopConfig{
		SD:              sd,
		InstanceID:      m.instanceID,
		ProfileID:       m.profileID,
		Logger:          m.logger.With(slog.String("sd_id", sd.ID.String())),
		Clock:           m.clock,
		Thresholds:      thresholds,
		PollInterval:    config.MustParseDuration(syncCfg.PollInterval, defaultPollIntervalFallback),
		PollJitter:      config.MustParseDuration(syncCfg.PollJitter, defaultPollJitterFallback),
		FileReadTimeout: config.MustParseDuration(syncCfg.FileReadTimeout, defaultFileReadTimeoutFallback),
		UseFsnotify:     syncCfg.UseFsnotify,
		Bookkeeping:     bk,
	})
	if err != nil {
		bk.Close()
		return nil, err
	}

	loop.Start(ctx)

	h := &Handle{sd: sd, loop: loop, bk: bk}

	m.mu.Lock()
	m.handles[sd.ID] = h
	m.mu.Unlock()

	return h, nil
}

// CloseAll stops every open Handle's loop, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[uuid.UUID]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

// SD returns the Storage Directory this Handle is bound to.
func (h *Handle) SD() storedir.SD { return h.sd }

// Close stops the loop and releases the bookkeeping database. Safe to call
// more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.loop.Stop()
	return h.bk.Close()
}

// Subscribe registers cb to fire on every merged state change for noteID.
// The returned func unsubscribes.
func (h *Handle) Subscribe(noteID uuid.UUID, cb func(*merge.Document)) (func(), error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	return h.loop.Subscribe(noteID, cb), nil
}

// ApplyEdit hands an embedder-produced CRDT update to the core for this
// note, persisting and broadcasting it.
func (h *Handle) ApplyEdit(noteID uuid.UUID, updateBytes []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.ApplyEdit(noteID, updateBytes)
}

// CreateNote creates a new note and returns its id.
func (h *Handle) CreateNote(body, title string) (uuid.UUID, error) {
	if h.isClosed() {
		return uuid.Nil, ErrClosed
	}
	return h.loop.CreateNote(body, title)
}

// DeleteNote soft-deletes noteID.
func (h *Handle) DeleteNote(noteID uuid.UUID) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.DeleteNote(noteID)
}

// ListNotes returns a summary of every known note.
func (h *Handle) ListNotes() ([]NoteInfo, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	return h.loop.ListNotes()
}

// GetInfo returns noteID's full summary.
func (h *Handle) GetInfo(noteID uuid.UUID) (NoteInfo, error) {
	if h.isClosed() {
		return NoteInfo{}, ErrClosed
	}
	return h.loop.GetInfo(noteID)
}

// GetContent returns noteID's current text body alongside its summary, for
// the web bridge's note-read endpoint.
func (h *Handle) GetContent(noteID uuid.UUID) (NoteContent, error) {
	if h.isClosed() {
		return NoteContent{}, ErrClosed
	}
	return h.loop.GetContent(noteID)
}

// Folders exposes the shared folder index for callers (the CLI, the web
// bridge) that need to inspect folder placement directly.
func (h *Handle) Folders() *merge.FolderIndex {
	return h.loop.folderIndex()
}

// AssignFolder sets folderID's parent to parentID (empty for a root
// folder).
func (h *Handle) AssignFolder(folderID, parentID string) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.AssignFolder(folderID, parentID)
}

// RemoveFolder detaches folderID from its parent.
func (h *Handle) RemoveFolder(folderID string) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.RemoveFolder(folderID)
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// EditText appends text to noteID's current body, encodes the resulting
// CRDT op as a new own-instance update, and persists it — the convenience
// path an embedder without its own CRDT mirror (the CLI, the fuzz
// harness) uses in place of hand-building update bytes.
func (h *Handle) EditText(noteID uuid.UUID, text string) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.EditText(noteID, text)
}

// ForceGC runs an unconditional pack-then-snapshot pass for noteID,
// ignoring the configured thresholds. It backs `notecove gc`'s explicit
// request path (spec.md §4.4: "on explicit request").
func (h *Handle) ForceGC(noteID uuid.UUID) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.loop.ForceGC(noteID)
}

// Fallback scheduling defaults used only if a caller hands Open a
// SyncConfig with unparseable duration strings that somehow slipped past
// config.Validate.
const (
	defaultPollIntervalFallback    = 1500 * time.Millisecond
	defaultPollJitterFallback      = 500 * time.Millisecond
	defaultFileReadTimeoutFallback = 5 * time.Second
)
