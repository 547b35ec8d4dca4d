// Package websocket streams the lifecycle journal to a remote collector.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/persistarrows/extension/pkg/streaming"
)

// Backend streams journal data over WebSocket. Session start and end wait
// for a server ack; records are fire-and-forget.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig

	mu        sync.Mutex
	sessionID core.ID
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		conn: newConnection(log.With("component", "journal-websocket"), defaultRetry),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

func (b *Backend) session() core.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// StartSession announces the session and waits for the server ack. The
// message is cached and replayed after a reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sessionID = s.ID
	b.mu.Unlock()
	b.conn.setStartMessage(data)

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, map[string]core.ID{"sessionId": b.session()})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.setStartMessage(nil)
	b.mu.Lock()
	b.sessionID = core.NilID
	b.mu.Unlock()

	return err
}

// RecordLifecycleEvents sends one batch message.
func (b *Backend) RecordLifecycleEvents(events []core.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	return b.sendEnvelope(streaming.TypeLifecycleEvents, streaming.LifecycleEventsPayload{
		SessionID: b.session(),
		Events:    events,
	})
}

// RecordStats sends one stats message.
func (b *Backend) RecordStats(s *core.Stats) error {
	return b.sendEnvelope(streaming.TypeStats, streaming.StatsPayload{SessionID: b.session(), Stats: s})
}

// Counters returns the number of messages written and dropped.
func (b *Backend) Counters() (sent, dropped uint64) {
	return b.conn.sent.Load(), b.conn.dropped.Load()
}
