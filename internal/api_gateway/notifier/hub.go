// Package notifier pushes session list changes to the signed-in user's
// websocket connections.
package notifier

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type client struct {
	hub           *Hub
	conn          *websocket.Conn
	userID        uuid.UUID
	authSessionID string
	send          chan []byte
}

// Hub tracks open websocket connections per user
type Hub struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]map[*client]struct{}
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Requests reach the hub only after token authentication.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger,
	}
}

// Serve upgrades the request and keeps the connection registered for userID
// until either side closes it or authSessionID is disconnected. On upgrade
// failure the HTTP error is already written.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID, authSessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:           h,
		conn:          conn,
		userID:        userID,
		authSessionID: authSessionID,
		send:          make(chan []byte, sendBuffer),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.WebsocketConnected()
	h.logger.Debug("Websocket client connected", "user_id", c.userID.String())
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	removed := h.remove(c)
	h.mu.Unlock()

	if removed {
		h.metrics.WebsocketDisconnected()
		h.logger.Debug("Websocket client disconnected", "user_id", c.userID.String())
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *client) bool {
	conns, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	return true
}

// Push queues payload for every connection of userID and returns how many
// accepted it. A connection with a full buffer misses the message.
func (h *Hub) Push(userID uuid.UUID, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Warn("Websocket send buffer full, dropping message", "user_id", userID.String())
		}
	}
	return delivered
}

// Connected reports whether userID has at least one open connection
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// DisconnectSession closes the connections opened under authSessionID and
// returns how many there were. Called on sign-out.
func (h *Hub) DisconnectSession(authSessionID string) int {
	closed := h.disconnect(func(c *client) bool { return c.authSessionID == authSessionID })
	if closed > 0 {
		h.logger.Info("Closed websocket connections of signed-out session", "auth_session_id", authSessionID, "count", closed)
	}
	return closed
}

// Close ends every connection
func (h *Hub) Close() {
	closed := h.disconnect(func(*client) bool { return true })
	h.logger.Info("Closed websocket connections", "count", closed)
}

func (h *Hub) disconnect(match func(*client) bool) int {
	h.mu.Lock()
	var closed int
	for _, conns := range h.clients {
		for c := range conns {
			if match(c) && h.remove(c) {
				closed++
			}
		}
	}
	h.mu.Unlock()

	for i := 0; i < closed; i++ {
		h.metrics.WebsocketDisconnected()
	}
	return closed
}

// readPump discards client messages; it exists to process pongs and notice disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read failed", "user_id", c.userID.String(), "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
