// Package hub carries the popup transport: each UI surface holds one
// WebSocket connection over which it sends typed requests and receives
// correlated responses plus broadcast events about every job.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/resumewright/resumewright/internal/convert"
	"github.com/resumewright/resumewright/internal/message"
)

// Frame kinds on the outbound wire.
const (
	kindResponse = "response"
	kindEvent    = "event"
)

// progressEventRate caps progress broadcasts per client so a chatty engine
// cannot flood the UI. Terminal events bypass the limiter.
const (
	progressEventRate  = rate.Limit(10) // events/second
	progressEventBurst = 20
)

// ErrNoClients reports a broadcast with nobody connected to hear it.
var ErrNoClients = errors.New("no connected clients")

// frame is one outbound message.
type frame struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
	Body      any    `json:"body"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// enqueue hands a payload to the write pump without blocking. A client that
// cannot keep up loses frames rather than stalling the sender; a departed
// client silently discards.
func (c *client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub accepts popup connections, feeds their requests through the router,
// and fans broadcast events out to everyone connected.
type Hub struct {
	router   *message.Router
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
}

// New creates a Hub dispatching into router.
func New(router *message.Router) *Hub {
	return &Hub{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The popup is a local surface; origin enforcement happens at
			// the listener (loopback bind), not here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
	}
}

// ServeWS upgrades an HTTP request to a popup connection and services it
// until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, 64),
		limiter: rate.NewLimiter(progressEventRate, progressEventBurst),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	// Handlers run on a context detached from the connection: closing the
	// popup must never abort a conversion it started. Jobs end only by
	// finishing or by an explicit cancelConversion.
	h.readPump(context.WithoutCancel(r.Context()), c)
}

// readPump reads request frames and answers them. Each request is handled
// in its own goroutine so a long-running startConversion never blocks a
// cancelConversion arriving on the same connection; requestId correlation
// keeps responses unambiguous.
func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}

		go func(raw []byte) {
			body, requestID := h.router.Dispatch(ctx, raw)
			h.deliver(c, frame{Kind: kindResponse, RequestID: requestID, Body: body})
		}(raw)
	}
}

// Broadcast sends an event to every connected client. Progress events are
// rate-limited per client; completion and failure always go through.
// Returns ErrNoClients when nobody is connected, which callers log and
// swallow.
func (h *Hub) Broadcast(ev convert.Event) error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if len(clients) == 0 {
		return ErrNoClients
	}

	f := frame{Kind: kindEvent, Body: ev}
	for _, c := range clients {
		if ev.Type == convert.EventProgress && !c.limiter.Allow() {
			continue
		}
		h.deliver(c, f)
	}
	return nil
}

func (h *Hub) deliver(c *client, f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		slog.Error("frame encode failed", "kind", f.Kind, "error", err)
		return
	}
	if !c.enqueue(payload) {
		slog.Warn("frame dropped", "kind", f.Kind)
	}
}

// ClientCount reports the number of connected popups.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (c *client) writePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Warn("websocket write failed", "error", err)
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}
