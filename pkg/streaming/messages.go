// Package streaming defines the wire messages of the websocket journal.
package streaming

import (
	"encoding/json"

	"github.com/persistarrows/extension/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession    = "start_session"
	TypeEndSession      = "end_session"
	TypeLifecycleEvents = "lifecycle_events"
	TypeStats           = "stats"
	TypeAck             = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a new session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// LifecycleEventsPayload carries one flushed batch of events.
type LifecycleEventsPayload struct {
	SessionID core.ID               `json:"sessionId"`
	Events    []core.LifecycleEvent `json:"events"`
}

// StatsPayload carries one stats sample.
type StatsPayload struct {
	SessionID core.ID     `json:"sessionId"`
	Stats     *core.Stats `json:"stats"`
}
