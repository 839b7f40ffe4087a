package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePositions feeds live position fixes to handler in arrival order.
// The session id is recovered from the subject when the payload omits it.
func (s *Subscriber) SubscribePositions(ctx context.Context, handler func(ctx context.Context, fix *domain.PositionFix) error) error {
	sub, err := s.js.Subscribe("run.position.>", func(msg *nats.Msg) {
		var fix domain.PositionFix
		if err := json.Unmarshal(msg.Data, &fix); err != nil {
			_ = msg.Nak()
			return
		}
		if fix.SessionID == "" {
			if id := strings.TrimPrefix(msg.Subject, "run.position."); id != "anonymous" {
				fix.SessionID = id
			}
		}
		if err := handler(ctx, &fix); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("position-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
