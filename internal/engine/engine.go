// Package engine composes the tracking core and exposes one method per host
// hook.
package engine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/impact"
	"github.com/persistarrows/extension/internal/parser"
	"github.com/persistarrows/extension/internal/persistence"
	"github.com/persistarrows/extension/internal/respawn"
	"github.com/persistarrows/extension/internal/tracking"
	"github.com/persistarrows/extension/pkg/core"
)

// DefaultCleanupEveryTicks is how often, in server ticks, old records are
// cleaned and stats are published.
const DefaultCleanupEveryTicks = 100

// Options holds everything needed to build a Service.
type Options struct {
	Config  config.EngineConfig
	Spawner respawn.Spawner
	// Classifier selects the projectiles worth tracking. Nil selects
	// core.DefaultClassifier.
	Classifier core.Classifier
	// Sink receives every lifecycle event. Nil discards them.
	Sink   core.EventSink
	Logger *slog.Logger
	Now    func() time.Time
}

// StatsFunc receives the periodic stats snapshot.
type StatsFunc func(core.Stats)

// Service wires registry, observer, correlator, scheduler, respawner and
// gate together.
type Service struct {
	cfg      config.EngineConfig
	classify core.Classifier
	sink     core.EventSink
	now      func() time.Time
	logger   *slog.Logger

	registry   *tracking.Registry
	gate       *persistence.Gate
	observer   *impact.Observer
	correlator *impact.Correlator
	scheduler  *respawn.Scheduler
	respawner  *respawn.Respawner
	parser     *parser.Parser
	metrics    *metrics

	tick      atomic.Uint64
	scheduled atomic.Uint64
	respawned atomic.Uint64
	expired   atomic.Uint64
	failed    atomic.Uint64
	cleaned   atomic.Uint64

	listenersMu sync.RWMutex
	onStats     []StatsFunc
}

// New builds a Service. Zero config values fall back to the stock defaults.
func New(opts Options) (*Service, error) {
	if opts.Spawner == nil {
		return nil, fmt.Errorf("engine: spawner is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Classifier == nil {
		opts.Classifier = core.DefaultClassifier
	}
	if opts.Sink == nil {
		opts.Sink = core.NopSink
	}
	cfg := withDefaults(opts.Config)

	s := &Service{
		cfg:      cfg,
		classify: opts.Classifier,
		sink:     opts.Sink,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	record := core.EventSinkFunc(s.record)

	s.registry = tracking.New(
		tracking.Config{Grace: cfg.Grace, MaxAge: cfg.MaxAge},
		opts.Logger.With("component", "tracking"),
		tracking.WithClock(opts.Now),
	)
	s.gate = persistence.NewGate()
	s.observer = impact.NewObserver(s.registry, cfg.HealthThreshold, opts.Now, opts.Logger.With("component", "impact"))
	s.respawner = respawn.NewRespawner(opts.Spawner, s.registry, opts.Logger.With("component", "respawner"),
		respawn.WithClassifier(opts.Classifier),
		respawn.WithEventSink(record),
		respawn.WithRespawnerClock(opts.Now),
	)
	s.scheduler = respawn.NewScheduler(s.registry, s.respawner, opts.Logger.With("component", "scheduler"),
		respawn.WithTTL(cfg.RequestTTL),
		respawn.WithSchedulerClock(opts.Now),
		respawn.WithSchedulerSink(record),
		respawn.WithSchedulerGate(s.gate),
	)
	s.correlator = impact.NewCorrelator(s.registry, s.observer, s.gate, s.scheduler, cfg.SourceKind,
		opts.Logger.With("component", "correlator"))
	s.parser = parser.NewParser(opts.Logger.With("component", "parser"))

	s.registry.SetRespawner(s.respawner)
	s.registry.OnStop(s.onStop)

	m, err := newMetrics(s)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	return s, nil
}

func withDefaults(cfg config.EngineConfig) config.EngineConfig {
	def := tracking.DefaultConfig()
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.CleanupEveryTicks <= 0 {
		cfg.CleanupEveryTicks = DefaultCleanupEveryTicks
	}
	if cfg.HealthThreshold <= 0 {
		cfg.HealthThreshold = impact.DefaultHealthThreshold
	}
	if cfg.SourceKind == "" {
		cfg.SourceKind = impact.DefaultSourceKind
	}
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = respawn.DefaultRequestTTL
	}
	return cfg
}

// OnStats registers fn to receive the stats published every
// CleanupEveryTicks ticks.
func (s *Service) OnStats(fn StatsFunc) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.onStats = append(s.onStats, fn)
}

// record counts the events emitted by the core and forwards them to the
// configured sink.
func (s *Service) record(e core.LifecycleEvent) {
	switch e.Kind {
	case core.LifecycleScheduled:
		s.scheduled.Add(1)
	case core.LifecycleRespawned:
		s.respawned.Add(1)
	case core.LifecycleExpired:
		s.expired.Add(1)
	case core.LifecycleSpawnFailed:
		s.failed.Add(1)
	case core.LifecycleCleaned:
		s.cleaned.Add(1)
	}
	s.metrics.count(e.Kind)
	s.sink.Record(e)
}

func (s *Service) onStop(rec core.TrackedRecord, reason tracking.Reason) {
	s.observer.OnDespawn(rec.ID)
	s.gate.Clear(rec.ID)

	kind := core.LifecycleUntracked
	if reason == tracking.ReasonMaxAge {
		kind = core.LifecycleCleaned
	}
	s.record(core.LifecycleEvent{
		At:           s.now(),
		Kind:         kind,
		ProjectileID: rec.ID,
		Reason:       string(reason),
		Position:     rec.Position,
		World:        rec.World,
	})
}

// recoverHook keeps a panic in a hook from reaching the host tick loop.
func (s *Service) recoverHook(hook string) {
	if r := recover(); r != nil {
		s.logger.Error("Recovered panic in hook", "hook", hook, "panic", r, "stack", string(debug.Stack()))
	}
}

// OnServerTick drains the respawn queue. Every CleanupEveryTicks ticks it
// also removes old records and publishes stats.
func (s *Service) OnServerTick() (stats respawn.DrainStats) {
	defer s.recoverHook("server-tick")

	tick := s.tick.Add(1)
	stats = s.scheduler.Drain()

	if tick%uint64(s.cfg.CleanupEveryTicks) == 0 {
		if n := s.registry.Cleanup(); n > 0 {
			s.logger.Debug("Cleaned up old records", "removed", n, "tracked", s.registry.Len())
		}
		s.publishStats()
	}
	return stats
}

// OnProjectileTick feeds one movement observation to the registry.
// Projectiles the classifier rejects are ignored.
func (s *Service) OnProjectileTick(p core.Projectile, inFeature bool) (action tracking.Action) {
	defer s.recoverHook("projectile-tick")

	if !s.classify(p.Payload) {
		return tracking.ActionNone
	}
	action = s.registry.CheckAndTrack(p, inFeature)
	if action == tracking.ActionCreated {
		payload := p.Payload.Clone()
		s.record(core.LifecycleEvent{
			At:           s.now(),
			Kind:         core.LifecycleTracked,
			ProjectileID: p.ID,
			Position:     p.Position,
			World:        p.World,
			Payload:      &payload,
		})
	}
	return action
}

// OnCollision reports a projectile hitting target. It returns true when the
// projectile was flagged for respawn.
func (s *Service) OnCollision(projectileID core.ID, target core.Target) (flagged bool) {
	defer s.recoverHook("collision")

	if !s.observer.OnImpact(projectileID, target) {
		return false
	}
	rec, _ := s.registry.Get(projectileID)
	s.record(core.LifecycleEvent{
		At:           s.now(),
		Kind:         core.LifecycleFlagged,
		ProjectileID: projectileID,
		TargetID:     target.ID,
		Position:     rec.Position,
		World:        rec.RespawnWorld,
	})
	return true
}

// OnDamagePre is the diagnostic pre-damage hook.
func (s *Service) OnDamagePre(e core.DamageEvent) {
	defer s.recoverHook("damage-pre")
	s.correlator.BeforeDamage(e)
}

// OnDamagePost confirms a death and returns the projectile scheduled for
// respawn, if any.
func (s *Service) OnDamagePost(e core.DamageEvent) (id core.ID, ok bool) {
	defer s.recoverHook("damage-post")

	c, ok := s.correlator.AfterDamage(e)
	if !ok {
		return core.NilID, false
	}
	now := s.now()
	s.record(core.LifecycleEvent{
		At:           now,
		Kind:         core.LifecycleConfirmed,
		ProjectileID: c.ProjectileID,
		TargetID:     c.TargetID,
		Position:     c.Position,
		World:        c.World,
	})
	s.record(core.LifecycleEvent{
		At:           now,
		Kind:         core.LifecycleScheduled,
		ProjectileID: c.ProjectileID,
		TargetID:     c.TargetID,
		Position:     c.Position,
		World:        c.World,
	})
	return c.ProjectileID, true
}

// OnRemoved stops tracking an entity the host removed.
func (s *Service) OnRemoved(id core.ID, cause string) {
	defer s.recoverHook("removed")
	s.registry.StopTracking(id, tracking.RemovedBy(cause))
}

// IsPersistent is consulted by the host before its default despawn.
func (s *Service) IsPersistent(id core.ID) bool {
	return s.gate.IsPersistent(id)
}

// IsTracked reports whether id has a tracking record.
func (s *Service) IsTracked(id core.ID) bool {
	return s.registry.IsTracked(id)
}

// Record returns the tracking record for id.
func (s *Service) Record(id core.ID) (core.TrackedRecord, bool) {
	return s.registry.Get(id)
}

// Stats returns the current counters.
func (s *Service) Stats() core.Stats {
	return core.Stats{
		At:         s.now(),
		Tick:       s.tick.Load(),
		Tracked:    s.registry.Len(),
		Pending:    s.scheduler.Pending(),
		Persistent: s.gate.Len(),
		Candidates: s.observer.Len(),
		Scheduled:  s.scheduled.Load(),
		Respawned:  s.respawned.Load(),
		Expired:    s.expired.Load(),
		Failed:     s.failed.Load(),
		Cleaned:    s.cleaned.Load(),
	}
}

// LogContext returns the live counts attached to every log record.
func (s *Service) LogContext() []slog.Attr {
	return []slog.Attr{
		slog.Int("tracked", s.registry.Len()),
		slog.Int("pending", s.scheduler.Pending()),
		slog.Int("persistent", s.gate.Len()),
	}
}

func (s *Service) publishStats() {
	s.listenersMu.RLock()
	listeners := make([]StatsFunc, len(s.onStats))
	copy(listeners, s.onStats)
	s.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}
	stats := s.Stats()
	for _, fn := range listeners {
		fn(stats)
	}
}
