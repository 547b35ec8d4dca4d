package impact

import (
	"log/slog"

	"github.com/persistarrows/extension/pkg/core"
)

// DefaultSourceKind is the damage source kind produced by a lingering cloud.
const DefaultSourceKind = "area_effect_cloud"

// Snapshotter lists tracked records in insertion order.
type Snapshotter interface {
	Snapshot() []core.TrackedRecord
}

// PersistenceMarker vetoes the default despawn of a projectile.
type PersistenceMarker interface {
	MarkPersistent(id core.ID)
}

// Scheduler queues a confirmed respawn.
type Scheduler interface {
	Schedule(id core.ID, impactPosition core.Vec3, world core.WorldRef)
}

// Confirmation describes a death attributed to a tracked projectile.
type Confirmation struct {
	ProjectileID core.ID
	TargetID     core.ID
	Position     core.Vec3
	World        core.WorldRef
}

// Correlator attributes deaths from the lingering cloud to the projectile
// that last hit the victim.
type Correlator struct {
	records    Snapshotter
	observer   *Observer
	gate       PersistenceMarker
	scheduler  Scheduler
	sourceKind string
	logger     *slog.Logger
}

// NewCorrelator wires a correlator. An empty sourceKind selects
// DefaultSourceKind.
func NewCorrelator(records Snapshotter, observer *Observer, gate PersistenceMarker, scheduler Scheduler, sourceKind string, logger *slog.Logger) *Correlator {
	if sourceKind == "" {
		sourceKind = DefaultSourceKind
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		records:    records,
		observer:   observer,
		gate:       gate,
		scheduler:  scheduler,
		sourceKind: sourceKind,
		logger:     logger,
	}
}

// BeforeDamage is diagnostic only.
func (c *Correlator) BeforeDamage(e core.DamageEvent) {
	if e.Source.Kind != c.sourceKind || !e.Target.Alive {
		return
	}
	if e.Amount >= e.Target.Health {
		c.logger.Debug("Potential instant kill from lingering cloud",
			"target", e.Target.ID, "health", e.Target.Health, "amount", e.Amount)
	}
}

// AfterDamage confirms a death and schedules the respawn of the projectile
// responsible for it, if any.
func (c *Correlator) AfterDamage(e core.DamageEvent) (Confirmation, bool) {
	if !e.WasAlive || e.Target.Alive {
		return Confirmation{}, false
	}
	if !e.Applied {
		c.logger.Warn("Entity died but damage was not applied", "target", e.Target.ID, "source", e.Source.Kind)
		return Confirmation{}, false
	}
	if e.Source.Kind != c.sourceKind {
		return Confirmation{}, false
	}

	for _, rec := range c.records.Snapshot() {
		if !rec.MarkedForRespawn {
			continue
		}
		if _, ok := c.observer.ConsumeIf(rec.ID, e.Target.ID); !ok {
			continue
		}

		c.gate.MarkPersistent(rec.ID)
		c.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)

		c.logger.Info("Death confirmed, respawn scheduled",
			"projectile", rec.ID, "target", e.Target.ID, "position", rec.Position.String(), "world", string(rec.RespawnWorld))
		return Confirmation{
			ProjectileID: rec.ID,
			TargetID:     e.Target.ID,
			Position:     rec.Position,
			World:        rec.RespawnWorld,
		}, true
	}

	c.logger.Debug("Cloud death with no flagged projectile", "target", e.Target.ID)
	return Confirmation{}, false
}
