package websocket

import (
	"sync"

	"github.com/wricardo/tiltroom/game/service"
	"github.com/wricardo/tiltroom/transport/pubsub"
)

// entry is everything the registry tracks for one connection
type entry struct {
	client *Client
	direct pubsub.Subscription
	rooms  map[string]pubsub.Subscription
	state  service.ConnState
}

// Registry tracks live connections, their room subscriptions and their
// protocol state
type Registry struct {
	conns map[string]*entry
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
	}
}

// Add registers a client with its connection-subject subscription
func (r *Registry) Add(c *Client, direct pubsub.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = &entry{
		client: c,
		direct: direct,
		rooms:  make(map[string]pubsub.Subscription),
		state:  service.StateUnbound,
	}
}

// Remove forgets connID and returns every subscription it held
func (r *Registry) Remove(connID string) (*Client, []pubsub.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil, nil
	}
	delete(r.conns, connID)

	subs := make([]pubsub.Subscription, 0, len(e.rooms)+1)
	if e.direct != nil {
		subs = append(subs, e.direct)
	}
	for _, s := range e.rooms {
		subs = append(subs, s)
	}
	return e.client, subs
}

// Get returns the client for connID
func (r *Registry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Alive reports whether connID is registered
func (r *Registry) Alive(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IDs returns every live connection id
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// AddRoom records a room subscription. It returns false when connID is
// unknown or already subscribed to code.
func (r *Registry) AddRoom(connID, code string, sub pubsub.Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, dup := e.rooms[code]; dup {
		return false
	}
	e.rooms[code] = sub
	return true
}

// HasRoom reports whether connID is subscribed to code
func (r *Registry) HasRoom(connID, code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, ok = e.rooms[code]
	return ok
}

// RemoveRoom drops and returns a room subscription
func (r *Registry) RemoveRoom(connID, code string) pubsub.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	sub := e.rooms[code]
	delete(e.rooms, code)
	return sub
}

// Rooms returns the room codes connID is subscribed to
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	codes := make([]string, 0, len(e.rooms))
	for code := range e.rooms {
		codes = append(codes, code)
	}
	return codes
}

// SetState records the protocol state of connID. Transitions are not
// validated.
func (r *Registry) SetState(connID string, state service.ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[connID]; ok {
		e.state = state
	}
}

// State returns the protocol state of connID. Unknown connections are
// reported as disconnected.
func (r *Registry) State(connID string) service.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[connID]; ok {
		return e.state
	}
	return service.StateDisconnected
}
