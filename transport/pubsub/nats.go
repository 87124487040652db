package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// HeaderExcept carries Message.Except on the wire
const HeaderExcept = "Relay-Except"

const (
	natsReconnectWait = 2 * time.Second
	natsName          = "tiltroom-relay"
)

// NATSBus publishes over core NATS subjects. Delivery is asynchronous.
type NATSBus struct {
	nc *nats.Conn
}

// ConnectNATS dials url and returns a bus over the connection
func ConnectNATS(url string) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(natsName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Str("module", "pubsub").Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "pubsub").Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Str("module", "pubsub").Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("module", "pubsub").Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return &NATSBus{nc: nc}, nil
}

// NewNATSBus wraps an existing connection
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

// Publish sends msg with the exclusion in a header
func (b *NATSBus) Publish(ctx context.Context, msg Message) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}

	m := nats.NewMsg(msg.Subject)
	m.Data = msg.Data
	if msg.Except != "" {
		m.Header.Set(HeaderExcept, msg.Except)
	}

	if err := b.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Subscribe registers h for subject
func (b *NATSBus) Subscribe(subject string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		h(Message{
			Subject: m.Subject,
			Data:    m.Data,
			Except:  m.Header.Get(HeaderExcept),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Flush waits until the server has processed everything sent so far
func (b *NATSBus) Flush(ctx context.Context) error {
	return b.nc.FlushWithContext(ctx)
}

// Close drains the connection
func (b *NATSBus) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
