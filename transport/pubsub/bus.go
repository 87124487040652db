package pubsub

import (
	"context"
	"errors"
)

// ErrClosed is returned by a bus after Close
var ErrClosed = errors.New("pubsub: bus closed")

// Message is a published payload. Except names a connection that must not
// receive it; empty means everyone.
type Message struct {
	Subject string
	Data    []byte
	Except  string
}

// Handler receives messages for a subscription
type Handler func(Message)

// Subscription is an active interest in one subject
type Subscription interface {
	Unsubscribe() error
}

// Bus is the group fan-out transport consumed by the broadcast router
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close() error
}
