package pubsub

import (
	"context"
	"sync"
)

// MemoryBus delivers messages in-process. Publish calls every handler of the
// subject before returning, in subscription order.
type MemoryBus struct {
	subs   map[string][]*memorySub
	nextID uint64
	closed bool
	mu     sync.RWMutex
}

type memorySub struct {
	bus     *MemoryBus
	subject string
	id      uint64
	handler Handler
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*memorySub),
	}
}

// Publish delivers msg to the subscribers of msg.Subject
func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*memorySub, len(b.subs[msg.Subject]))
	copy(subs, b.subs[msg.Subject])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(msg)
	}
	return nil
}

// Subscribe registers h for subject
func (b *MemoryBus) Subscribe(subject string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	s := &memorySub{bus: b, subject: subject, id: b.nextID, handler: h}
	b.subs[subject] = append(b.subs[subject], s)
	return s, nil
}

// Subscribers returns the number of subscriptions on subject
func (b *MemoryBus) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

// Close drops every subscription
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]*memorySub)
	return nil
}

// Unsubscribe is idempotent
func (s *memorySub) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.subject]
	for i, other := range list {
		if other.id == s.id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, s.subject)
	} else {
		b.subs[s.subject] = list
	}
	return nil
}
