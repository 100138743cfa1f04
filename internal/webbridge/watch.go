package webbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/merge"
)

// watchMessage is pushed over the websocket each time syncloop observes a
// merged state change for the watched note, mirroring the "subscribe"
// notification named in spec.md §6.
type watchMessage struct {
	NoteID      string           `json:"noteId"`
	VectorClock map[string]int64 `json:"vectorClock"`
	Body        string           `json:"body"`
}

// handleWatch upgrades to a websocket connection (GET /notes/{id}/watch)
// that pushes a watchMessage on every merge-driven change to noteID, until
// the client disconnects or the request context is canceled. Read-only:
// nothing the client sends over the socket is interpreted as a command.
func (b *Bridge) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("webbridge: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// CloseRead dedicates the connection to outbound pushes: it discards
	// anything the client sends and cancels ctx once the client closes.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan watchMessage, 8)
	unsub, err := b.handle.Subscribe(id, func(doc *merge.Document) {
		msg := watchMessage{NoteID: id.String(), VectorClock: copyClock(doc.VectorClock), Body: doc.CRDT.Text()}
		select {
		case updates <- msg:
		default:
			// Slow consumer: drop the stale update, the next merge pass
			// will push a fresher one.
		}
	})
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, err.Error())
		return
	}
	defer unsub()

	if content, err := b.handle.GetContent(id); err == nil {
		b.writeWatchMessage(ctx, conn, watchMessage{NoteID: id.String(), VectorClock: content.VectorClock, Body: content.Body})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-updates:
			if !b.writeWatchMessage(ctx, conn, msg) {
				return
			}
		}
	}
}

func (b *Bridge) writeWatchMessage(ctx context.Context, conn *websocket.Conn, msg watchMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Warn("webbridge: marshal watch message failed", slog.String("error", err.Error()))
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}

func copyClock(vc map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}
