package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/tiltroom/game/service"
	"github.com/wricardo/tiltroom/transport/pubsub"
)

// DefaultSubjectPrefix namespaces bus subjects
const DefaultSubjectPrefix = "tiltroom"

// Router implements service.Broadcaster on top of a pubsub.Bus. Every room
// and every connection is a subject.
type Router struct {
	bus      pubsub.Bus
	registry *Registry
	prefix   string
}

// NewRouter creates a router publishing under prefix
func NewRouter(bus pubsub.Bus, registry *Registry, prefix string) *Router {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Router{
		bus:      bus,
		registry: registry,
		prefix:   prefix,
	}
}

// RoomSubject returns the subject of a room group
func (r *Router) RoomSubject(code string) string {
	return fmt.Sprintf("%s.room.%s", r.prefix, code)
}

// ConnSubject returns the subject of a single connection
func (r *Router) ConnSubject(connID string) string {
	return fmt.Sprintf("%s.conn.%s", r.prefix, connID)
}

// ToRoom sends to every subscriber of the room
func (r *Router) ToRoom(code, event string, data any) {
	r.publish(r.RoomSubject(code), "", event, data)
}

// ToRoomExcept sends to every subscriber of the room but exceptConnID
func (r *Router) ToRoomExcept(code, exceptConnID, event string, data any) {
	r.publish(r.RoomSubject(code), exceptConnID, event, data)
}

// ToConn sends to one connection. Unknown connections drop the message.
func (r *Router) ToConn(connID, event string, data any) {
	r.publish(r.ConnSubject(connID), "", event, data)
}

// Subscribe adds connID to the room group. Repeating it is a no-op.
func (r *Router) Subscribe(connID, code string) {
	if r.registry.HasRoom(connID, code) {
		return
	}
	c, ok := r.registry.Get(connID)
	if !ok {
		log.Debug().Str("module", "router").Str("conn_id", connID).Msg("subscribe for unknown connection")
		return
	}

	sub, err := r.bus.Subscribe(r.RoomSubject(code), deliverTo(c))
	if err != nil {
		log.Error().Str("module", "router").Err(err).Str("room", code).Msg("room subscribe failed")
		return
	}
	if !r.registry.AddRoom(connID, code, sub) {
		sub.Unsubscribe()
	}
}

// Unsubscribe removes connID from the room group
func (r *Router) Unsubscribe(connID, code string) {
	if sub := r.registry.RemoveRoom(connID, code); sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Str("module", "router").Err(err).Str("room", code).Msg("room unsubscribe failed")
		}
	}
}

// Attach registers c and subscribes it to its own subject
func (r *Router) Attach(c *Client) error {
	sub, err := r.bus.Subscribe(r.ConnSubject(c.id), deliverTo(c))
	if err != nil {
		return fmt.Errorf("subscribe connection %s: %w", c.id, err)
	}
	r.registry.Add(c, sub)
	return nil
}

// Detach unregisters connID, cancels all its subscriptions and closes its
// send buffer
func (r *Router) Detach(connID string) {
	c, subs := r.registry.Remove(connID)
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Str("module", "router").Err(err).Str("conn_id", connID).Msg("unsubscribe failed")
		}
	}
	if c != nil {
		c.close()
	}
}

func (r *Router) publish(subject, except, event string, data any) {
	payload, err := json.Marshal(service.Message{Event: event, Data: data})
	if err != nil {
		log.Error().Str("module", "router").Err(err).Str("event", event).Msg("failed to marshal message")
		return
	}

	msg := pubsub.Message{Subject: subject, Data: payload, Except: except}
	if err := r.bus.Publish(context.Background(), msg); err != nil {
		log.Error().Str("module", "router").Err(err).Str("subject", subject).Msg("publish failed")
	}
}

// deliverTo returns a bus handler that honors the exclusion and never blocks
func deliverTo(c *Client) pubsub.Handler {
	return func(m pubsub.Message) {
		if m.Except == c.id {
			return
		}
		if err := c.TrySend(m.Data); errors.Is(err, ErrBackpressure) {
			log.Warn().Str("module", "router").Str("conn_id", c.id).Str("subject", m.Subject).Msg("send buffer full, message dropped")
		}
	}
}
