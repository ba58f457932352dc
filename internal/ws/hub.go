package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Hub broadcasts update lifecycle events to connected observers. It
// implements domain.EventSink: Emit is fire-and-forget, a connection that
// fails a write is dropped.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}

	// gorilla/websocket permits one concurrent writer per connection;
	// broadcasts from concurrent update workers are serialized here.
	sendMu sync.Mutex

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type envelope struct {
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
	TS    time.Time `json:"ts"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are dashboards and CLIs, not browsers with
			// credentials; origin enforcement buys nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("event observer connected", zap.Int("observers", n))

	// Drain the read side so pings and close frames are processed; the
	// hub never expects inbound payloads.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit broadcasts one event to every connected observer.
func (h *Hub) Emit(event string, payload any) {
	msg := envelope{Event: event, Data: payload, TS: time.Now()}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.drop(conn)
		}
	}
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}
