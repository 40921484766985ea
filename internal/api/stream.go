package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"fieldnav/pkg/engine"
)

const (
	streamSendSize = 8
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientMsg   = 512
)

// Visibility is told when a client reports its view hidden or visible.
type Visibility interface {
	SetHidden(hidden bool)
}

// clientMessage is what a renderer may send back over the stream.
type clientMessage struct {
	Type   string `json:"type"` // "visibility"
	Hidden bool   `json:"hidden"`
}

// StreamHub pushes engine frames to WebSocket clients. It implements engine.FrameSink.
type StreamHub struct {
	upgrader ws.Upgrader
	interval time.Duration
	view     Visibility
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	lastSent time.Time
	closed   bool
}

type streamClient struct {
	conn *ws.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewStreamHub creates a hub that sends at most one frame per interval. view may be nil.
func NewStreamHub(interval time.Duration, view Visibility) *StreamHub {
	return &StreamHub{
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		interval: interval,
		view:     view,
		logger:   slog.With("component", "stream"),
		clients:  make(map[*streamClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// UpdateFrame implements engine.FrameSink. Frames closer than the interval to the
// previous broadcast are skipped; a slow client misses frames instead of blocking.
func (h *StreamHub) UpdateFrame(f *engine.Frame) {
	h.mu.Lock()
	if h.closed || len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	if since := f.Timestamp.Sub(h.lastSent); since >= 0 && since < h.interval {
		h.mu.Unlock()
		return
	}
	h.lastSent = f.Timestamp
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("Failed to encode frame", "error", err)
		return
	}
	for _, c := range targets {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the client goes away.
// GET /api/stream
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, streamSendSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Stream client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *StreamHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.drop(c)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write error", "error", err)
				h.drop(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

func (h *StreamHub) readLoop(c *streamClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(maxClientMsg)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring client message", "raw", string(data))
			continue
		}
		if msg.Type == "visibility" && h.view != nil {
			h.view.SetHidden(msg.Hidden)
		}
	}
}

func (h *StreamHub) drop(c *streamClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()
		close(c.done)
		c.conn.Close()
		h.logger.Info("Stream client disconnected", "clients", n)
	})
}

// Close disconnects every client and refuses new ones.
func (h *StreamHub) Close() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		_ = c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "shutdown"), time.Now().Add(writeWait))
		h.drop(c)
	}
}
