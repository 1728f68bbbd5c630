package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub fans engine events out to WebSocket clients.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	bus     *workflow.EventBus
	events  chan workflow.Event
}

// NewWSHub subscribes to the engine's event bus.
func NewWSHub(bus *workflow.EventBus) *WSHub {
	return &WSHub{
		clients: make(map[*websocket.Conn]bool),
		bus:     bus,
		events:  bus.Subscribe(),
	}
}

// Run broadcasts events to connected clients. It blocks until the
// subscription channel closes.
func (h *WSHub) Run() {
	for evt := range h.events {
		var failed []*websocket.Conn
		h.mu.RLock()
		for conn := range h.clients {
			if err := conn.WriteJSON(evt); err != nil {
				failed = append(failed, conn)
			}
		}
		h.mu.RUnlock()
		// Map mutation needs the write lock; drop broken conns before the
		// next event so they never take another write.
		for _, conn := range failed {
			h.remove(conn)
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (h *WSHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Drain reads to detect disconnects.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}
