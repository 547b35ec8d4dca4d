package core

import "time"

// LifecycleKind names a step in a tracked projectile's life.
type LifecycleKind string

const (
	LifecycleTracked     LifecycleKind = "tracked"
	LifecycleUntracked   LifecycleKind = "untracked"
	LifecycleFlagged     LifecycleKind = "flagged"
	LifecycleConfirmed   LifecycleKind = "confirmed"
	LifecycleScheduled   LifecycleKind = "scheduled"
	LifecycleExpired     LifecycleKind = "expired"
	LifecycleRespawned   LifecycleKind = "respawned"
	LifecycleSpawnFailed LifecycleKind = "spawn_failed"
	LifecycleCleaned     LifecycleKind = "cleaned"
)

// LifecycleEvent is an audit entry written to the journal. It is never read
// back to rebuild state.
type LifecycleEvent struct {
	At            time.Time     `json:"at"`
	Kind          LifecycleKind `json:"kind"`
	ProjectileID  ID            `json:"projectileId"`
	ReplacementID ID            `json:"replacementId,omitempty"`
	TargetID      ID            `json:"targetId,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Position      Vec3          `json:"position"`
	World         WorldRef      `json:"world,omitempty"`
	Payload       *Payload      `json:"payload,omitempty"`
}

// EventSink receives lifecycle events. Implementations must not block.
type EventSink interface {
	Record(LifecycleEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(LifecycleEvent)

// Record calls f(e).
func (f EventSinkFunc) Record(e LifecycleEvent) { f(e) }

// NopSink discards every event.
var NopSink EventSink = EventSinkFunc(func(LifecycleEvent) {})
