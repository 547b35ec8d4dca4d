// pkg/core/types.go
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID identifies a host entity (projectile or target).
type ID = uuid.UUID

// NilID is the zero ID.
var NilID = uuid.Nil

// WorldRef is the host's key for a world/dimension. Empty means "no world".
type WorldRef string

// Sentinel errors shared by the core and the host adapters.
var (
	ErrInvalidWorld = errors.New("invalid world reference")
	ErrSpawnFailed  = errors.New("spawn failed")
)

// Vec3 is a position or velocity in host world coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// String formats the vector the way hosts send positions ("x,y,z").
func (v Vec3) String() string {
	return fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Projectile is one per-tick observation of a live projectile.
type Projectile struct {
	ID       ID
	Payload  Payload
	Position Vec3
	Velocity Vec3
	World    WorldRef
}

// Target is the entity a projectile collided with or that took damage.
type Target struct {
	ID        ID
	Health    float64
	MaxHealth float64
	Alive     bool
	// Living is false for non-living entities (item frames, boats, ...).
	Living bool
}

// DamageSource describes what applied damage to a target.
type DamageSource struct {
	Kind     string
	EntityID ID
}

// DamageEvent is delivered before and after the host applies damage.
// Target carries the state at the hook point; WasAlive is the state before
// the damage was resolved.
type DamageEvent struct {
	Target   Target
	Source   DamageSource
	Amount   float64
	WasAlive bool
	Applied  bool
}

// TrackedRecord is the registry's view of one monitored projectile.
type TrackedRecord struct {
	ID               ID
	Payload          Payload
	Position         Vec3
	Velocity         Vec3
	World            WorldRef
	StartedAt        time.Time
	LastSeenAt       time.Time
	InFeature        bool
	MarkedForRespawn bool
	RespawnWorld     WorldRef
}

// Age returns how long the record has been tracked at now.
func (r TrackedRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// ImpactCandidate links a projectile to the target it hit, pending death
// confirmation.
type ImpactCandidate struct {
	ProjectileID ID
	TargetID     ID
	TargetHealth float64
	At           time.Time
}

// RespawnRequest is a confirmed respawn waiting for the next tick boundary.
type RespawnRequest struct {
	ProjectileID   ID
	ImpactPosition Vec3
	World          WorldRef
	CreatedAt      time.Time
}

// Age returns the request age at now.
func (r RespawnRequest) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
