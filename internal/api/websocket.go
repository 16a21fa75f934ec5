package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-stage/internal/playback"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll subscribes a client to every channel.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

// WSMessage is a frame exchanged with a console.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, the node, unit or
// miss names a console cares about. No names means every name.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Names    []string `json:"names,omitempty"`
}

// nameFilter is nil for "every name".
type nameFilter map[string]struct{}

func (f nameFilter) allows(name string) bool {
	if f == nil {
		return true
	}
	_, ok := f[strings.ToLower(name)]
	return ok
}

// Hub fans playback telemetry out to connected consoles.
// It satisfies playback.Broadcaster.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// WSClient is one connected console.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string

	mu   sync.RWMutex
	subs map[string]nameFilter
}

func newClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		subject: subject,
		subs:    make(map[string]nameFilter),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. A nil logger falls back to logging.Default.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*WSClient]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("console connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client. Repeated calls are no-ops; the send channel
// is closed exactly once.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("console disconnected", "subject", c.subject, "clients", n)
	}
}

// Broadcast delivers payload to clients subscribed to channel whose name
// filter accepts it. It never blocks; a full client buffer drops the frame.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding broadcast", "channel", channel, "error", err)
		return
	}
	name := subjectName(payload)

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.wants(channel, name) {
			continue
		}
		if c.trySend(data) {
			h.sent.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

// subjectName is the node, unit or miss name a telemetry payload is about.
func subjectName(payload any) string {
	switch p := payload.(type) {
	case playback.NodeUpdate:
		return p.Name
	case playback.UnitUpdate:
		return p.Unit
	case stage.Miss:
		return p.Name
	default:
		return ""
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Sent returns the number of frames queued to clients.
func (h *Hub) Sent() uint64 { return h.sent.Load() }

// Dropped returns the number of frames lost to full client buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// handleWebSocket upgrades the connection. authMiddleware has already
// checked the token when auth is enabled.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // empty when auth is disabled
	c := newClient(s.hub, conn, subject)
	s.hub.Register(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, pong := wsIntervals(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("console read failed", "subject", c.subject, "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(frame)
	}
}

func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ping, writeWait := wsIntervals(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // the write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// wsIntervals returns the ping interval and pong timeout, defaulting unset
// values.
func wsIntervals(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = 30*time.Second, 10*time.Second
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func (c *WSClient) handle(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.subscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorBody("unknown message type: "+msg.Type))
	}
}

func (c *WSClient) subscribe(msg WSMessage) {
	// Payload arrives as a generic map; round-trip it into the typed form.
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.reply(msg.ID, WSTypeError, errorBody("invalid payload"))
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		c.reply(msg.ID, WSTypeError, errorBody("channels are required"))
		return
	}

	var filter nameFilter
	if len(sub.Names) > 0 {
		filter = make(nameFilter, len(sub.Names))
		for _, n := range sub.Names {
			filter[strings.ToLower(n)] = struct{}{}
		}
	}

	add := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range sub.Channels {
		if add {
			c.subs[ch] = filter
		} else {
			delete(c.subs, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.reply(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels, "names": sub.Names})
}

// wants reports whether the client subscribed to channel (or to every
// channel) with a filter that accepts name.
func (c *WSClient) wants(channel, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.subs[channel]; ok && f.allows(name) {
		return true
	}
	f, ok := c.subs[WSChannelAll]
	return ok && f.allows(name)
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client has been unregistered.
func (c *WSClient) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err == nil {
		c.trySend(data)
	}
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
