package stages

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/timephone/console/core"
	"github.com/timephone/console/metrics"
	"github.com/timephone/console/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HubConfig holds WebSocket hub configuration.
type HubConfig struct {
	// Replay returns the snapshots a newly joined client should be
	// brought up to date with.
	Replay func() []core.Snapshot
	Logger zerolog.Logger
}

// DisplayMessage is the frame pushed to dashboard clients: either a call
// snapshot or a raw pass-through event.
type DisplayMessage struct {
	Type      string         `json:"type"` // "snapshot" or "event"
	Snapshot  *core.Snapshot `json:"snapshot,omitempty"`
	Event     *RawEvent      `json:"event,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// RawEvent is the display form of an event outside the closed kind set.
type RawEvent struct {
	Kind   string         `json:"kind"`
	CallID string         `json:"call_id,omitempty"`
	Text   string         `json:"text,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// Hub fans display updates out to connected dashboard clients. A client
// that cannot keep up is dropped rather than allowed to stall the stream.
type Hub struct {
	config  HubConfig
	log     zerolog.Logger
	mu      sync.Mutex
	clients map[string]*hubClient
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a hub with no connected clients.
func NewHub(config HubConfig) *Hub {
	return &Hub{
		config:  config,
		log:     config.Logger.With().Str("component", "ws_hub").Logger(),
		clients: make(map[string]*hubClient),
	}
}

// Name returns the stage name.
func (h *Hub) Name() string {
	return "ws_hub"
}

// Publish sends one display update to every connected client.
func (h *Hub) Publish(update session.Update) {
	msg := toDisplayMessage(update)
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal display message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client is not draining its queue; cut it loose.
			h.log.Warn().Str("client_id", c.id).Msg("dropping slow dashboard client")
			h.removeLocked(c)
		}
	}
}

// ServeWS upgrades the request and serves the client until it disconnects.
// The client is first brought up to date with a snapshot replay, then
// receives live updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.replay(c)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.ClientsConnected.Inc()
	h.log.Info().Str("client_id", c.id).Msg("dashboard client connected")

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// replay queues the current state of every known call for a new client.
func (h *Hub) replay(c *hubClient) {
	if h.config.Replay == nil {
		return
	}
	for _, snap := range h.config.Replay() {
		s := snap
		msg := DisplayMessage{
			Type:      "snapshot",
			Snapshot:  &s,
			Timestamp: time.Now().UnixMilli(),
		}
		if data, err := json.Marshal(msg); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// writePump drains the client's queue onto its connection.
func (h *Hub) writePump(c *hubClient) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
}

// readPump consumes (and discards) client frames so close and ping
// handling work; it returns when the connection dies.
func (h *Hub) readPump(c *hubClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	metrics.ClientsConnected.Dec()
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
	h.log.Info().Str("client_id", c.id).Msg("dashboard client disconnected")
}

// toDisplayMessage converts an aggregator update into a client frame.
func toDisplayMessage(update session.Update) *DisplayMessage {
	switch {
	case update.Snapshot != nil:
		return &DisplayMessage{
			Type:      "snapshot",
			Snapshot:  update.Snapshot,
			Timestamp: time.Now().UnixMilli(),
		}
	case update.Raw != nil:
		meta := update.Raw.EventMeta()
		raw := &RawEvent{
			Kind:   string(update.Raw.EventType()),
			CallID: meta.CallID,
			At:     meta.At,
		}
		if u, ok := update.Raw.(core.UnknownEvent); ok {
			raw.Text = u.Text
			raw.Data = u.Data
		}
		return &DisplayMessage{
			Type:      "event",
			Event:     raw,
			Timestamp: time.Now().UnixMilli(),
		}
	default:
		return nil
	}
}
