// Package respawn queues confirmed respawns and spawns their replacements at
// the tick boundary.
package respawn

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/persistarrows/extension/pkg/core"
)

// Spawner creates a projectile in the host world.
type Spawner interface {
	Spawn(world core.WorldRef, pos core.Vec3, payload core.Payload, velocity core.Vec3) (core.ID, error)
}

// Tracker starts tracking a replacement projectile.
type Tracker interface {
	StartTracking(p core.Projectile) bool
}

// Respawner spawns replacements that keep payload and position of the
// original projectile.
type Respawner struct {
	spawner  Spawner
	tracker  Tracker
	classify core.Classifier
	sink     core.EventSink
	now      func() time.Time
	logger   *slog.Logger
}

// RespawnerOption configures a Respawner.
type RespawnerOption func(*Respawner)

// WithClassifier overrides the payload classifier used to decide whether a
// replacement is re-tracked.
func WithClassifier(c core.Classifier) RespawnerOption {
	return func(r *Respawner) { r.classify = c }
}

// WithEventSink sets the lifecycle sink.
func WithEventSink(s core.EventSink) RespawnerOption {
	return func(r *Respawner) { r.sink = s }
}

// WithRespawnerClock overrides the time source.
func WithRespawnerClock(now func() time.Time) RespawnerOption {
	return func(r *Respawner) { r.now = now }
}

// NewRespawner creates a respawner.
func NewRespawner(spawner Spawner, tracker Tracker, logger *slog.Logger, opts ...RespawnerOption) *Respawner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Respawner{
		spawner:  spawner,
		tracker:  tracker,
		classify: core.DefaultClassifier,
		sink:     core.NopSink,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respawn spawns a replacement for rec in world at the captured position with
// zero velocity. Failures are logged and returned; there is no retry.
func (r *Respawner) Respawn(rec core.TrackedRecord, world core.WorldRef) (core.ID, error) {
	payload := rec.Payload.Clone()

	if world == "" {
		r.fail(rec, world, core.ErrInvalidWorld)
		return core.NilID, fmt.Errorf("respawn %s: %w", rec.ID, core.ErrInvalidWorld)
	}

	newID, err := r.spawner.Spawn(world, rec.Position, payload, core.Vec3{})
	if err != nil {
		r.fail(rec, world, err)
		return core.NilID, fmt.Errorf("respawn %s: %w", rec.ID, err)
	}

	retracked := false
	if r.classify(payload) {
		retracked = r.tracker.StartTracking(core.Projectile{
			ID:       newID,
			Payload:  payload,
			Position: rec.Position,
			World:    world,
		})
	}

	r.logger.Info("Respawned projectile",
		"projectile", rec.ID, "replacement", newID, "position", rec.Position.String(),
		"world", string(world), "retracked", retracked)

	p := payload
	r.sink.Record(core.LifecycleEvent{
		At:            r.now(),
		Kind:          core.LifecycleRespawned,
		ProjectileID:  rec.ID,
		ReplacementID: newID,
		Position:      rec.Position,
		World:         world,
		Payload:       &p,
	})
	return newID, nil
}

func (r *Respawner) fail(rec core.TrackedRecord, world core.WorldRef, err error) {
	r.logger.Warn("Failed to respawn projectile",
		"projectile", rec.ID, "world", string(world), "position", rec.Position.String(), "error", err)
	r.sink.Record(core.LifecycleEvent{
		At:           r.now(),
		Kind:         core.LifecycleSpawnFailed,
		ProjectileID: rec.ID,
		Reason:       err.Error(),
		Position:     rec.Position,
		World:        world,
	})
}
