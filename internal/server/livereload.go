package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds a single broadcast write; a tab that stopped
// reading is dropped instead of stalling the others.
const writeTimeout = 10 * time.Second

// reloadMessage is the payload sent to connected browsers after a
// successful rebuild.
type reloadMessage struct {
	Command   string    `json:"command"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub tracks connected browser tabs and broadcasts reload notifications.
// The zero value is not usable; create hubs with NewHub.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local development server; accept any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and keeps the
// connection registered until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.add(conn)
	defer h.remove(conn)

	h.logger.Debug("browser connected", slog.String("remote", conn.RemoteAddr().String()))

	// Browsers don't send anything meaningful; the read loop only
	// detects disconnects.
	for {
		if _, _, readErr := conn.ReadMessage(); readErr != nil {
			return
		}
	}
}

// Broadcast tells every connected browser to reload. Connections that
// fail to accept the message are dropped.
func (h *Hub) Broadcast(path string) {
	msg := reloadMessage{
		Command:   "reload",
		Path:      path,
		Timestamp: time.Now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			h.drop(conn)
			continue
		}

		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("dropping stale browser connection",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()),
			)
			h.drop(conn)
		}
	}
}

// Count returns the number of connected browsers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.conns)
}

// Close disconnects every browser. Used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		h.drop(conn)
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns == nil {
		h.conns = make(map[*websocket.Conn]struct{})
	}

	h.conns[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.drop(conn)
}

// drop closes and forgets conn. Callers must hold h.mu.
func (h *Hub) drop(conn *websocket.Conn) {
	_ = conn.Close()
	delete(h.conns, conn)
}
