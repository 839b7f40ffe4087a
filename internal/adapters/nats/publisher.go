package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// Publisher implements ports.EventPublisher and ports.Narrator using NATS
// JetStream. Narration events reach the browser (which does the actual
// speech) through the WebSocket relay subscribed to the same subjects.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the streams exist.
func NewPublisher(url string) (*Publisher, error) {
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

	streams := []nats.StreamConfig{
		{
			Name:      "NARRATION_EVENTS",
			Subjects:  []string{"run.narration.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "RUN_POSITIONS",
			Subjects:  []string{"run.position.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishNarration emits one narration event for a session.
func (p *Publisher) PublishNarration(ctx context.Context, event *domain.NarrationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("run.narration."+event.SessionID, data)
	return err
}

// PublishPosition emits one live position fix.
func (p *Publisher) PublishPosition(ctx context.Context, fix *domain.PositionFix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	subject := "run.position." + fix.SessionID
	if fix.SessionID == "" {
		subject = "run.position.anonymous"
	}
	_, err = p.js.Publish(subject, data)
	return err
}

// Say publishes a speak request for the session. The browser client renders
// it through its speech synthesizer; "say" events are informational while
// "speak" events trigger actual speech.
func (p *Publisher) Say(ctx context.Context, sessionID, text string) error {
	return p.PublishNarration(ctx, &domain.NarrationEvent{
		SessionID: sessionID,
		Type:      "speak",
		Text:      text,
	})
}

// Cancel publishes a cancel request that stops any in-flight utterance.
func (p *Publisher) Cancel(ctx context.Context, sessionID string) error {
	return p.PublishNarration(ctx, &domain.NarrationEvent{
		SessionID: sessionID,
		Type:      "cancel",
	})
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
