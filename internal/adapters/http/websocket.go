package http

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/metrics"
)

// wsMessage is sent from the client during an open directions session.
type wsMessage struct {
	Action         string  `json:"action"` // "subscribe" | "unsubscribe" | "position"
	SessionID      string  `json:"session_id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// TrackHandler returns a handler that upgrades to WebSocket, relays narration
// events for the client's directions session, and accepts live position fixes.
// Clients send JSON: {"action":"position","session_id":"abc","lat":43.26,"lon":-2.93}
// and {"action":"subscribe","session_id":"abc"} to follow a session's narration.
func TrackHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log.Printf("ws client connected: %s", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Follow all narration until the client narrows to one session.
		defaultSubject := "run.narration.>"
		sub, err := deps.NATS.Subscribe(defaultSubject, func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		})
		if err != nil {
			log.Printf("ws default subscribe error: %v", err)
			return
		}
		subs[defaultSubject] = sub

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "position":
				// Feed the fix directly and mirror it onto the position
				// subject for the durable consumer.
				fix := &domain.PositionFix{
					SessionID:      m.SessionID,
					Location:       domain.GeoPoint{Lat: m.Lat, Lon: m.Lon},
					AccuracyMeters: m.AccuracyMeters,
				}
				deps.Narration.FeedPosition(context.Background(), fix)
				if data, err := json.Marshal(fix); err == nil {
					sessionID := m.SessionID
					if sessionID == "" {
						sessionID = "anonymous"
					}
					_ = deps.NATS.Publish("run.position."+sessionID, data)
				}

			case "subscribe":
				if m.SessionID == "" {
					_ = writeJSON(map[string]string{"error": "session_id is required"})
					continue
				}
				subject := "run.narration." + m.SessionID
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				// Drop the firehose once the client picks a session.
				if s, exists := subs[defaultSubject]; exists {
					_ = s.Unsubscribe()
					delete(subs, defaultSubject)
				}
				s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
					_ = writeJSON(json.RawMessage(msg.Data))
				})
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				subject := "run.narration." + m.SessionID
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Printf("ws client disconnected: %s", remoteAddr)
	}
}
