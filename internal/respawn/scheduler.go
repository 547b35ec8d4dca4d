package respawn

import (
	"log/slog"
	"time"

	"github.com/persistarrows/extension/internal/queue"
	"github.com/persistarrows/extension/internal/tracking"
	"github.com/persistarrows/extension/pkg/core"
)

// DefaultRequestTTL is how long a confirmed respawn stays valid.
const DefaultRequestTTL = 5000 * time.Millisecond

// Registry is the part of the tracking registry the scheduler needs.
type Registry interface {
	Take(id core.ID) (core.TrackedRecord, bool)
	Release(rec core.TrackedRecord, reason tracking.Reason)
	Unmark(id core.ID) bool
}

// Gate is the persistence flag store cleared when a request expires.
type Gate interface {
	Clear(id core.ID) bool
}

// Handoff performs the respawn of a tracked record.
type Handoff interface {
	Respawn(rec core.TrackedRecord, world core.WorldRef) (core.ID, error)
}

// DrainStats summarises one Drain call.
type DrainStats struct {
	Processed int `json:"processed"`
	Respawned int `json:"respawned"`
	Expired   int `json:"expired"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

// Scheduler holds confirmed respawn requests until the next tick boundary.
type Scheduler struct {
	registry  Registry
	respawner Handoff
	gate      Gate
	ttl       time.Duration
	now       func() time.Time
	sink      core.EventSink
	logger    *slog.Logger

	pending *queue.Queue[core.RespawnRequest]
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTTL overrides DefaultRequestTTL.
func WithTTL(ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.ttl = ttl }
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSchedulerSink sets the lifecycle sink.
func WithSchedulerSink(sink core.EventSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithSchedulerGate sets the gate cleared for expired requests.
func WithSchedulerGate(g Gate) SchedulerOption {
	return func(s *Scheduler) { s.gate = g }
}

// NewScheduler creates an empty scheduler.
func NewScheduler(registry Registry, respawner Handoff, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		registry:  registry,
		respawner: respawner,
		ttl:       DefaultRequestTTL,
		now:       time.Now,
		sink:      core.NopSink,
		logger:    logger,
		pending:   queue.New[core.RespawnRequest](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues a respawn request. It never blocks on the host.
func (s *Scheduler) Schedule(id core.ID, impactPosition core.Vec3, world core.WorldRef) {
	s.pending.Push(core.RespawnRequest{
		ProjectileID:   id,
		ImpactPosition: impactPosition,
		World:          world,
		CreatedAt:      s.now(),
	})
	s.logger.Debug("Respawn scheduled", "projectile", id, "pending", s.pending.Len())
}

// Drain processes every queued request in FIFO order. Requests scheduled
// while draining are left for the next call.
func (s *Scheduler) Drain() DrainStats {
	var stats DrainStats
	requests := s.pending.GetAndEmpty()
	if len(requests) == 0 {
		return stats
	}

	now := s.now()
	for _, req := range requests {
		stats.Processed++

		if age := req.Age(now); age >= s.ttl {
			stats.Expired++
			s.expire(req.ProjectileID)
			s.logger.Warn("Respawn request expired", "projectile", req.ProjectileID, "age", age)
			s.sink.Record(core.LifecycleEvent{
				At:           now,
				Kind:         core.LifecycleExpired,
				ProjectileID: req.ProjectileID,
				Position:     req.ImpactPosition,
				World:        req.World,
			})
			continue
		}

		rec, ok := s.registry.Take(req.ProjectileID)
		if !ok {
			stats.Missing++
			s.logger.Info("Respawn request for untracked projectile", "projectile", req.ProjectileID)
			continue
		}

		if _, err := s.respawner.Respawn(rec, req.World); err != nil {
			stats.Failed++
		} else {
			stats.Respawned++
		}
		s.registry.Release(rec, tracking.ReasonRespawned)
	}

	s.logger.Debug("Drained respawn queue",
		"processed", stats.Processed, "respawned", stats.Respawned, "expired", stats.Expired,
		"missing", stats.Missing, "failed", stats.Failed)
	return stats
}

// expire drops the respawn flag of a projectile whose request went stale, so
// neither the gate nor a later stop acts on it.
func (s *Scheduler) expire(id core.ID) {
	if s.gate != nil {
		s.gate.Clear(id)
	}
	s.registry.Unmark(id)
}

// Pending returns the number of queued requests.
func (s *Scheduler) Pending() int {
	return s.pending.Len()
}
