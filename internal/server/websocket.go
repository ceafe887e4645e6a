package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// defaultDevOrigins are accepted when no allow list is configured.
var defaultDevOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader builds an upgrader whose origin check honors the configured
// allow list. Requests without an Origin header are accepted so non-browser
// clients can connect. "*" in the list allows every origin.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = defaultDevOrigins
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Hub fans run lifecycle events out to websocket clients. It implements
// engine.Notifier so the engine can feed it directly.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan engine.RunEvent
	register   chan *wsClient
	unregister chan *wsClient

	logger *zap.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Call Run in a goroutine to start dispatching.
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan engine.RunEvent, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run dispatches registrations and broadcasts until the hub is stopped.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebSocketConnections.Dec()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("marshaling run event", zap.Error(err))
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if client.runID != "" && client.runID != ev.RunID {
					continue
				}
				select {
				case client.send <- data:
					metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
				default:
					// Client buffer full, drop the connection.
					delete(h.clients, client)
					close(client.send)
					metrics.WebSocketConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Notify implements engine.Notifier. Events are dropped when the hub buffer
// is full so the analysis path never blocks on slow clients.
func (h *Hub) Notify(ev engine.RunEvent) {
	select {
	case h.broadcast <- ev:
	default:
	}
}

// Stop cancels the dispatch loop and closes all client connections.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		metrics.WebSocketConnections.Dec()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsClient is one websocket subscriber. An empty runID subscribes to every
// run; otherwise only events for that run are delivered.
type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
	id    string
	runID string
}

// readPump consumes client frames until the connection drops. Inbound
// payloads are not interpreted; the stream is one-directional.
func (c *wsClient) readPump(logger *zap.Logger) {
	defer func() {
		// The hub may already be stopped; do not block on unregister then.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
	}
}

// writePump forwards hub messages and keepalive pings to the peer.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued messages into the same frame batch.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StreamHandler upgrades HTTP requests into hub subscriptions.
type StreamHandler struct {
	hub      *Hub
	upgrader *websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a websocket handler bound to the hub.
func NewStreamHandler(hub *Hub, allowedOrigins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		hub:      hub,
		upgrader: newUpgrader(allowedOrigins),
		logger:   logger,
	}
}

// ServeWS handles GET /stream and GET /runs/{id}/stream. The {id} route
// variable, when present, narrows the subscription to one run.
func (sh *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sh.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:  conn,
		send:  make(chan []byte, 256),
		hub:   sh.hub,
		id:    uuid.New().String(),
		runID: mux.Vars(r)["id"],
	}
	sh.hub.register <- client

	go client.writePump()
	go client.readPump(sh.logger)

	sh.logger.Debug("websocket client connected",
		zap.String("client_id", client.id),
		zap.String("run_id", client.runID),
	)
}
