// Package impact links projectile collisions to the deaths they cause.
package impact

import (
	"log/slog"
	"sync"
	"time"

	"github.com/persistarrows/extension/pkg/core"
)

// DefaultHealthThreshold is the target health at or below which a collision
// flags the projectile for respawn.
const DefaultHealthThreshold = 10.0

// Tracker is the part of the tracking registry the observer needs.
type Tracker interface {
	IsTracked(id core.ID) bool
	MarkForRespawn(id core.ID) (core.WorldRef, bool)
	Unmark(id core.ID) bool
}

// Observer keeps the latest collision of each tracked projectile.
type Observer struct {
	tracker   Tracker
	threshold float64
	now       func() time.Time
	logger    *slog.Logger

	mu         sync.Mutex
	candidates map[core.ID]core.ImpactCandidate
}

// NewObserver creates an observer. A zero threshold selects
// DefaultHealthThreshold.
func NewObserver(tracker Tracker, threshold float64, now func() time.Time, logger *slog.Logger) *Observer {
	if threshold <= 0 {
		threshold = DefaultHealthThreshold
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		tracker:    tracker,
		threshold:  threshold,
		now:        now,
		logger:     logger,
		candidates: make(map[core.ID]core.ImpactCandidate),
	}
}

// OnImpact records a collision between a projectile and target. It returns
// true when the projectile was flagged for respawn. A hit that does not
// qualify clears any flag left by an earlier hit.
func (o *Observer) OnImpact(projectileID core.ID, target core.Target) bool {
	if !o.tracker.IsTracked(projectileID) {
		return false
	}
	if !target.Living {
		return false
	}

	o.mu.Lock()
	o.candidates[projectileID] = core.ImpactCandidate{
		ProjectileID: projectileID,
		TargetID:     target.ID,
		TargetHealth: target.Health,
		At:           o.now(),
	}
	o.mu.Unlock()

	// A stop between the first check and the insert has already run
	// OnDespawn for this id.
	if !o.tracker.IsTracked(projectileID) {
		o.OnDespawn(projectileID)
		return false
	}

	o.logger.Debug("Projectile impact",
		"projectile", projectileID, "target", target.ID, "health", target.Health, "maxHealth", target.MaxHealth)

	if target.Health > o.threshold || !target.Alive {
		if o.tracker.Unmark(projectileID) {
			o.logger.Debug("Respawn flag cleared by later impact",
				"projectile", projectileID, "target", target.ID, "health", target.Health)
		}
		return false
	}

	world, ok := o.tracker.MarkForRespawn(projectileID)
	if !ok {
		return false
	}
	o.logger.Info("Low health impact, projectile flagged for respawn",
		"projectile", projectileID, "target", target.ID, "health", target.Health, "world", string(world))
	return true
}

// OnDespawn drops the candidate for a projectile that stopped being tracked.
func (o *Observer) OnDespawn(projectileID core.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.candidates, projectileID)
}

// Candidate returns the latest collision recorded for projectileID.
func (o *Observer) Candidate(projectileID core.ID) (core.ImpactCandidate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.candidates[projectileID]
	return c, ok
}

// ConsumeIf removes the candidate for projectileID only if it targets
// targetID.
func (o *Observer) ConsumeIf(projectileID, targetID core.ID) (core.ImpactCandidate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.candidates[projectileID]
	if !ok || c.TargetID != targetID {
		return core.ImpactCandidate{}, false
	}
	delete(o.candidates, projectileID)
	return c, true
}

// Len returns the number of pending candidates.
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.candidates)
}
