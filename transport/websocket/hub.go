package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/tiltroom/game/service"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer. Maps are relayed through the
	// server, so this is well above a single sample.
	defaultReadLimit = 64 * 1024

	defaultSendBuffer = 256
)

// Config tunes connection handling
type Config struct {
	ReadLimit   int64
	WriteWait   time.Duration
	PongWait    time.Duration
	SendBuffer  int
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the connection defaults
func DefaultConfig() Config {
	return Config{
		ReadLimit:  defaultReadLimit,
		WriteWait:  defaultWriteWait,
		PongWait:   defaultPongWait,
		SendBuffer: defaultSendBuffer,
	}
}

// pingPeriod must be less than pongWait
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return c
}

type inboundEvent struct {
	client *Client
	msg    service.Inbound
}

// Hub owns every connection and runs all relay calls on one goroutine
type Hub struct {
	cfg      Config
	router   *Router
	registry *Registry
	relay    service.RelayService
	upgrader websocket.Upgrader

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Decoded frames from clients
	inbound chan inboundEvent

	// Work scheduled onto the loop
	tasks chan func()

	done chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(cfg Config, router *Router, relay service.RelayService) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:      cfg,
		router:   router,
		registry: router.registry,
		relay:    relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, 64),
		tasks:      make(chan func(), 8),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and blocks until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(ctx, client)

		case ev := <-h.inbound:
			h.handleInbound(ctx, ev)

		case fn := <-h.tasks:
			fn()
		}
	}
}

// Submit schedules fn onto the event loop. It returns false once the hub
// has stopped.
func (h *Hub) Submit(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.tasks <- fn:
		return true
	case <-h.done:
		return false
	}
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

// Registry exposes connection liveness for the janitor
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWS upgrades the request and starts the client pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("module", "hub").Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), h, conn, h.cfg.SendBuffer)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// registerClient subscribes the client to its own subject
func (h *Hub) registerClient(client *Client) {
	if err := h.router.Attach(client); err != nil {
		log.Error().Str("module", "hub").Err(err).Str("conn_id", client.id).Msg("failed to attach client")
		client.close()
		return
	}

	log.Info().
		Str("module", "hub").
		Str("conn_id", client.id).
		Int("connections", h.registry.Count()).
		Msg("client registered")
}

// unregisterClient vacates the client's seats and drops its subscriptions
func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	if current, ok := h.registry.Get(client.id); !ok || current != client {
		return
	}

	if err := h.relay.Disconnect(ctx, client.id); err != nil {
		log.Warn().Str("module", "hub").Err(err).Str("conn_id", client.id).Msg("disconnect cleanup failed")
	}
	h.router.Detach(client.id)

	log.Info().
		Str("module", "hub").
		Str("conn_id", client.id).
		Int("connections", h.registry.Count()).
		Msg("client unregistered")
}

func (h *Hub) handleInbound(ctx context.Context, ev inboundEvent) {
	if !h.registry.Alive(ev.client.id) {
		return
	}
	if err := h.relay.HandleEvent(ctx, ev.client.id, ev.msg); err != nil {
		logEventError(ev.client.id, ev.msg.Event, err)
	}
}

func (h *Hub) shutdown() {
	for _, id := range h.registry.IDs() {
		h.router.Detach(id)
	}
	log.Info().Str("module", "hub").Msg("hub stopped")
}

// logEventError picks a level by how expected the failure is
func logEventError(connID, event string, err error) {
	e := log.Warn()
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		e = log.Debug()
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrRoomFull),
		errors.Is(err, service.ErrNotInRoom):
		e = log.Info()
	}
	e.Str("module", "hub").Str("conn_id", connID).Str("event", event).Err(err).Msg("event rejected")
}

// readPump pumps frames from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Str("module", "hub").Err(err).Str("conn_id", c.id).Msg("websocket error")
			}
			return
		}

		var msg service.Inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			log.Warn().Str("module", "hub").Str("conn_id", c.id).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.hub.inbound <- inboundEvent{client: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection, one
// JSON message per frame
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
