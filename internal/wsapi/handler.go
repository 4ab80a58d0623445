// Package wsapi wires HTTP and WebSocket requests to the session manager:
// the /ws handshake (attach-or-create, session/MOTD/history framing,
// bidirectional streaming) and the read-only /api/sessions status
// surface, grounded on the teacher's internal/hub and internal/api
// packages.
package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"nhooyr.io/websocket"

	"github.com/ptyfan/ptyfan/internal/config"
	"github.com/ptyfan/ptyfan/internal/motd"
	"github.com/ptyfan/ptyfan/internal/ptyproc"
	"github.com/ptyfan/ptyfan/internal/sessionmgr"
	"github.com/ptyfan/ptyfan/internal/sessionstore"
	"github.com/ptyfan/ptyfan/internal/terminal"
)

// Handler bundles the dependencies needed to serve the /ws, /health, and
// /api/sessions* endpoints.
type Handler struct {
	cfg      config.Config
	manager  *sessionmgr.Manager
	store    *sessionstore.Store
	renderer *motd.Renderer
}

// New constructs a Handler. store may be nil (no persistence); renderer
// may be nil (no MOTD, equivalent to --motd-art none).
func New(cfg config.Config, manager *sessionmgr.Manager, store *sessionstore.Store, renderer *motd.Renderer) *Handler {
	return &Handler{cfg: cfg, manager: manager, store: store, renderer: renderer}
}

// Mux builds the complete HTTP handler for the endpoints this package
// owns. The caller mounts it under its own top-level router.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/sessions", h.handleListSessions)
	mux.HandleFunc("/api/sessions/history", h.handleSessionHistory)
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/ws/{session_id}", h.handleWebSocket)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries := h.manager.Snapshot()
	jsonResponse(w, http.StatusOK, summaries)
}

func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	if h.store == nil {
		jsonResponse(w, http.StatusOK, []sessionstore.Record{})
		return
	}

	recs, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		slog.Warn("wsapi: failed to query session history", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to query session history")
		return
	}
	if recs == nil {
		recs = []sessionstore.Record{}
	}
	jsonResponse(w, http.StatusOK, recs)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	cols := queryInt(r, "cols", 0)
	rows := queryInt(r, "rows", 0)
	cmd := r.URL.Query().Get("cmd")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("wsapi: websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	client := newWSClient(conn)

	sess, isNew, err := h.attachOrCreate(ctx, sessionID, cols, rows, cmd)
	if err != nil {
		slog.Warn("wsapi: failed to attach or create session", "session_id", sessionID, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	sessMsg, _ := json.Marshal(sessionMessage{Type: msgTypeSession, ID: sess.ID()})
	if err := client.writeDirect(ctx, websocket.MessageText, sessMsg); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	if isNew && h.renderer != nil {
		banner := h.renderer.Render(h.cfg.Host, h.cfg.Port, r.RemoteAddr)
		if len(banner) > 0 {
			if err := client.writeDirect(ctx, websocket.MessageBinary, banner); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "")
				return
			}
		}
	}

	go client.writePump(ctx)
	sess.AddClient(client)
	defer func() {
		client.Close()
		sess.RemoveClient(client)
		// The request context is cancelled by the time this runs (the
		// connection just dropped); use a fresh context so the reap's
		// SessionStore write isn't aborted by that cancellation.
		h.reapIfDone(context.Background(), sess)
	}()

	h.readPump(ctx, client, sess)
}

func (h *Handler) attachOrCreate(ctx context.Context, sessionID string, cols, rows int, cmd string) (*terminal.Session, bool, error) {
	if sessionID != "" {
		if sess, ok := h.manager.GetSession(sessionID); ok && sess.Alive() {
			return sess, false, nil
		}
	}

	cfg := terminal.Config{
		HistorySize: h.cfg.HistorySize,
		LogEnabled:  h.cfg.LogEnabled,
		LogDir:      h.cfg.LogDir,
		PtyConfig: ptyproc.Config{
			Term:  "xterm-256color",
			Shell: h.cfg.Shell,
			Cmd:   h.cfg.Cmd,
		},
	}
	sess, err := h.manager.CreateSession(ctx, cfg, normalizeDim(cols), normalizeDim(rows), cmd)
	if err != nil {
		return nil, false, fmt.Errorf("wsapi: creating session: %w", err)
	}
	return sess, true, nil
}

// readPump relays client frames to the session: binary input verbatim,
// text control messages per the resize/ping grammar.
func (h *Handler) readPump(ctx context.Context, client *wsClient, sess *terminal.Session) {
	for {
		kind, data, err := client.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				slog.Warn("wsapi: client read error", "session_id", sess.ID(), "error", err)
			}
			return
		}

		switch kind {
		case websocket.MessageBinary:
			sess.Write(data)
		case websocket.MessageText:
			h.handleControlMessage(client, sess, data)
		}
	}
}

func (h *Handler) handleControlMessage(client *wsClient, sess *terminal.Session, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("wsapi: malformed client message", "session_id", sess.ID(), "error", err)
		return
	}

	switch msg.Type {
	case msgTypeResize:
		cols, rows := msg.Cols, msg.Rows
		if cols <= 0 {
			cols = defaultCols
		}
		if rows <= 0 {
			rows = defaultRows
		}
		sess.Resize(cols, rows)
	case msgTypePing:
		pong, _ := json.Marshal(pongMessage{Type: msgTypePong})
		_ = client.SendText(pong)
	default:
		slog.Warn("wsapi: unknown client message type", "session_id", sess.ID(), "type", msg.Type)
	}
}

// reapIfDone removes a session once it has no clients left AND its PTY
// has already exited — the spec's reaping policy, evaluated after every
// client detach.
func (h *Handler) reapIfDone(ctx context.Context, sess *terminal.Session) {
	alive, count := sess.Status()
	if !alive && count == 0 {
		h.manager.RemoveSession(ctx, sess.ID())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func normalizeDim(n int) int {
	if n <= 0 {
		return 0
	}
	return n
}

