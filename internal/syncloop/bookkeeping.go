package syncloop

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// bookkeeping is the sync loop's own, instance-local, never-replicated
// state: the last mtime observed for each note directory (so a poll can
// skip directories that haven't changed) and the last vector clock
// published to subscribers (so P2 idempotence holds — an unchanged note
// must not re-fire callbacks). None of this is authoritative; losing the
// database costs one extra full scan at next startup, the same guarantee
// activitylog gives for the replicated activity log.
type bookkeeping struct {
	db *sql.DB
}

// openBookkeeping opens (creating if necessary) the SQLite database at
// path and runs pending migrations, exactly as the teacher's
// BaselineManager does for its own state database.
func openBookkeeping(ctx context.Context, path string, logger *slog.Logger) (*bookkeeping, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("syncloop: open bookkeeping db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &bookkeeping{db: db}, nil
}

// openBookkeepingMemory opens an in-memory bookkeeping database, for tests,
// following the teacher's ":memory:" fixture pattern.
func openBookkeepingMemory(ctx context.Context, logger *slog.Logger) (*bookkeeping, error) {
	return openBookkeeping(ctx, ":memory:", logger)
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("syncloop: migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("syncloop: migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("syncloop: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied bookkeeping migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}
	return nil
}

// Close releases the bookkeeping database handle.
func (b *bookkeeping) Close() error {
	return b.db.Close()
}

// cursor is one note's bookkeeping row.
type cursor struct {
	LastMtime   int64
	VectorClock map[string]int64
}

// loadCursor reads the bookkeeping row for noteID, returning the zero
// cursor (mtime 0, empty clock) if none exists yet — the normal state for
// a note never before polled.
func (b *bookkeeping) loadCursor(noteID uuid.UUID) (cursor, error) {
	var mtime int64
	var vcJSON string
	err := b.db.QueryRow(
		`SELECT last_mtime, vector_clock FROM note_cursor WHERE note_id = ?`,
		noteID.String(),
	).Scan(&mtime, &vcJSON)
	if err == sql.ErrNoRows {
		return cursor{VectorClock: map[string]int64{}}, nil
	}
	if err != nil {
		return cursor{}, fmt.Errorf("syncloop: load cursor %s: %w", noteID, err)
	}

	vc := map[string]int64{}
	if vcJSON != "" {
		if err := json.Unmarshal([]byte(vcJSON), &vc); err != nil {
			return cursor{}, fmt.Errorf("syncloop: decode cursor clock %s: %w", noteID, err)
		}
	}
	return cursor{LastMtime: mtime, VectorClock: vc}, nil
}

// saveCursor upserts noteID's bookkeeping row.
func (b *bookkeeping) saveCursor(noteID uuid.UUID, c cursor) error {
	vcJSON, err := json.Marshal(c.VectorClock)
	if err != nil {
		return fmt.Errorf("syncloop: encode cursor clock %s: %w", noteID, err)
	}

	_, err = b.db.Exec(
		`INSERT INTO note_cursor (note_id, last_mtime, vector_clock) VALUES (?, ?, ?)
		 ON CONFLICT(note_id) DO UPDATE SET last_mtime = excluded.last_mtime, vector_clock = excluded.vector_clock`,
		noteID.String(), c.LastMtime, string(vcJSON),
	)
	if err != nil {
		return fmt.Errorf("syncloop: save cursor %s: %w", noteID, err)
	}
	return nil
}

// lastSnapshotSeq returns the owning instance's sequence number as of its
// last snapshot for noteID, or -1 if it has never snapshotted this note.
func (b *bookkeeping) lastSnapshotSeq(noteID uuid.UUID) (int64, error) {
	var seq int64
	err := b.db.QueryRow(`SELECT last_snapshot_seq FROM gc_state WHERE note_id = ?`, noteID.String()).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("syncloop: load gc state %s: %w", noteID, err)
	}
	return seq, nil
}

// setLastSnapshotSeq upserts noteID's last-snapshot sequence marker.
func (b *bookkeeping) setLastSnapshotSeq(noteID uuid.UUID, seq int64) error {
	_, err := b.db.Exec(
		`INSERT INTO gc_state (note_id, last_snapshot_seq) VALUES (?, ?)
		 ON CONFLICT(note_id) DO UPDATE SET last_snapshot_seq = excluded.last_snapshot_seq`,
		noteID.String(), seq,
	)
	if err != nil {
		return fmt.Errorf("syncloop: save gc state %s: %w", noteID, err)
	}
	return nil
}
