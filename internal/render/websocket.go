package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/brainball/internal/display"
)

const (
	clientBuffer = 8
	writeTimeout = 5 * time.Second
)

// Hub is a [Renderer] that broadcasts content to websocket clients. Mount it
// as an http.Handler; every new client first receives the latest frame.
//
// Slow clients never block Render: when a client's buffer is full the frame
// is dropped for that client.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool

	acceptOpts *websocket.AcceptOptions
}

type client struct {
	send chan []byte
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin websocket connections from hosts
// matching the given patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.acceptOpts.OriginPatterns = patterns }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*client]struct{}),
		acceptOpts: &websocket.AcceptOptions{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Render implements [Renderer].
func (h *Hub) Render(_ context.Context, c display.Content) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("render: marshal content: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			slog.Debug("render: dropped frame for slow client")
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOpts)
	if err != nil {
		slog.Warn("render: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	cl := &client{send: make(chan []byte, clientBuffer)}
	if !h.register(cl) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(cl)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-cl.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("render: websocket write", "err", err)
				return
			}
		}
	}
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	if h.last != nil {
		cl.send <- h.last
	}
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// Close disconnects all clients. Render keeps working but reaches nobody.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
	return nil
}
