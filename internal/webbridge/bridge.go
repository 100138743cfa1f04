// Package webbridge implements the one first-class external surface spec.md
// §1 explicitly allows: "a simple bearer-token admission check for a
// read-only web bridge." It exposes a syncloop.Handle's notes over HTTP,
// mirroring the teacher corpus's net/http-ServeMux-plus-JSON style (see
// vjache-cie's cmd/cie/serve.go and cuemby-warren's pkg/api/health.go) with
// a live-update channel layered on coder/websocket. There is no write path:
// applyEdit stays a Go-API-only operation for the embedder.
package webbridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/syncloop"
)

// Bridge serves one syncloop.Handle's notes read-only over HTTP.
type Bridge struct {
	handle *syncloop.Handle
	token  string
	logger *slog.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// New constructs a Bridge. bearerToken is compared against each request's
// Authorization header using a constant-time comparison; an empty token
// means the bridge is unusable (every request is rejected) rather than
// silently open, since a misconfigured bridge should fail closed.
func New(handle *syncloop.Handle, bearerToken string, logger *slog.Logger) *Bridge {
	b := &Bridge{handle: handle, token: bearerToken, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes", b.withAuth(b.handleListNotes))
	mux.HandleFunc("GET /notes/{id}", b.withAuth(b.handleGetNote))
	mux.HandleFunc("GET /notes/{id}/info", b.withAuth(b.handleGetNoteInfo))
	mux.HandleFunc("GET /notes/{id}/watch", b.withAuth(b.handleWatch))
	b.mux = mux

	return b
}

// Handler returns the bridge's http.Handler, for embedding in a caller's
// own server or httptest.Server in tests.
func (b *Bridge) Handler() http.Handler { return b.mux }

// ListenAndServe starts the bridge's own HTTP server on addr, blocking
// until the server stops (matching the teacher's pattern of a dedicated
// http.Server with explicit read/write timeouts rather than the
// zero-value http.ListenAndServe).
func (b *Bridge) ListenAndServe(addr string) error {
	b.srv = &http.Server{
		Addr:              addr,
		Handler:           b.mux,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout is intentionally left at zero: the /watch endpoint
		// holds its connection open indefinitely for server-push updates.
	}
	b.logger.Info("webbridge: listening", slog.String("addr", addr))
	err := b.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the bridge's server, if ListenAndServe started
// one.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.srv == nil {
		return nil
	}
	return b.srv.Shutdown(ctx)
}

func (b *Bridge) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b.token == "" {
			writeError(w, http.StatusServiceUnavailable, "bridge has no bearer token configured")
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		presented := auth[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(b.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (b *Bridge) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := b.handle.ListNotes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (b *Bridge) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	content, err := b.handle.GetContent(id)
	if err != nil {
		writeNoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (b *Bridge) handleGetNoteInfo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	info, err := b.handle.GetInfo(id)
	if err != nil {
		writeNoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeNoteError(w http.ResponseWriter, err error) {
	if errors.Is(err, syncloop.ErrUnknownNote) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
