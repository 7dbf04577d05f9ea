// Package feed broadcasts book snapshots to websocket clients while a
// simulation runs. Publishing never blocks the simulation loop: a client
// that falls behind loses messages.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mmsim/internal/domain"
	"mmsim/internal/infra"
)

// Path is the websocket endpoint served by the hub.
const Path = "/snapshots"

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// MessageTypeSnapshot tags snapshot messages.
const MessageTypeSnapshot = "snapshot"

// Message is the wire format of the feed.
type Message struct {
	Type     string          `json:"type"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	writeMu sync.Mutex
}

// Hub fans snapshots out to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *infra.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}

	dropped atomic.Uint64
	server  *http.Server
	wg      sync.WaitGroup
}

// NewHub creates a hub with no clients.
func NewHub(metrics *infra.Metrics) *Hub {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler serving Path.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.serveWS)
	return mux
}

// Start listens on addr in the background.
func (h *Hub) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.server = &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 10 * time.Second}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Snapshot feed server failed", slog.Any("error", err))
		}
	}()
	slog.Info("📡 Snapshot feed listening", slog.String("addr", ln.Addr().String()), slog.String("path", Path))
	return nil
}

// Shutdown stops the server and disconnects every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return err
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish sends a snapshot to every client without blocking.
func (h *Hub) Publish(snap domain.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	b, err := json.Marshal(Message{Type: MessageTypeSnapshot, Snapshot: snap})
	if err != nil {
		slog.Error("Snapshot encode failed", slog.Any("error", err))
		return
	}

	for c := range h.clients {
		select {
		case c.send <- b:
		default: // DROP
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.wg.Add(2)
	h.register(c)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.metrics.IncrementFeedClients()
	h.mu.Unlock()
	slog.Debug("Feed client connected", slog.String("remote", c.conn.RemoteAddr().String()))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.DecrementFeedClients()
	h.mu.Unlock()
	c.conn.Close()
}

func (c *client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(msgType, data)
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readLoop only exists to process control frames and notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
