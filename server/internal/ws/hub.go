package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/rulstack/rulstack/pkg/types"
	"github.com/rulstack/rulstack/server/internal/inference"
	"github.com/rulstack/rulstack/server/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// maxFrameBytes caps one incoming reading frame.
	maxFrameBytes = 4096
)

// Hub serves streaming predictions. Every text frame a client sends is one
// reading; the hub answers each with exactly one frame, in order.
type Hub struct {
	svc      *inference.Service
	metrics  *metrics.Metrics
	origins  *cors.Cors
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts which browser origins may open a stream.
// It takes the same list as the HTTP CORS policy; empty or "*" allows all.
// Browsers do not apply CORS to WebSocket upgrades, so the hub enforces it.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		h.origins = cors.New(cors.Options{AllowedOrigins: origins})
	}
}

// New creates a Hub that predicts with svc. m may be nil. Without options
// every origin may connect.
func New(svc *inference.Service, m *metrics.Metrics, opts ...Option) *Hub {
	h := &Hub{
		svc:     svc,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response (403 for a
		// rejected origin).
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	h.readPump(r.Context(), c) // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

// checkOrigin admits requests without an Origin header (non-browser
// clients) and browser requests whose origin the allow-list accepts.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.origins == nil || r.Header.Get("Origin") == "" {
		return true
	}
	if !h.origins.OriginAllowed(r) {
		slog.Warn("ws: origin rejected", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		return false
	}
	return true
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.StreamConnected(1)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.StreamConnected(-1)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamConnected(-len(h.clients))
	}
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// enqueue queues data for c. A client whose buffer is full is disconnected.
// Reports false when c is no longer connected.
func (h *Hub) enqueue(c *client, data []byte) bool {
	h.mu.RLock()
	if _, ok := h.clients[c]; !ok {
		h.mu.RUnlock()
		return false
	}
	select {
	case c.send <- data:
		h.mu.RUnlock()
		return true
	default:
	}
	h.mu.RUnlock()

	slog.Warn("ws: client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
	h.unregister(c)
	return false
}

// respond runs one prediction and encodes the reply frame.
func (h *Hub) respond(ctx context.Context, frame []byte) []byte {
	var v interface{}
	rul, err := h.svc.PredictJSON(ctx, metrics.TransportStream, frame)
	if err != nil {
		v = types.ErrorResponse{Error: err.Error()}
	} else {
		v = types.Prediction{PredictedRUL: rul}
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(types.ErrorResponse{Error: err.Error()})
	}
	return data
}

// readPump reads reading frames and queues one reply per frame. It also
// handles pong and close control messages. Blocks until the connection closes.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws: read failed", "err", err)
			}
			return
		}
		if !h.enqueue(c, h.respond(ctx, frame)) {
			return
		}
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
