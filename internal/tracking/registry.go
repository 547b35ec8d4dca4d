// Package tracking owns the registry of monitored projectiles. It is the
// source of truth for whether a projectile id is tracked.
package tracking

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/persistarrows/extension/pkg/core"
)

// Reason explains why a record stopped being tracked.
type Reason string

const (
	ReasonFeatureExitTimeout Reason = "feature-exit-timeout"
	ReasonRespawned          Reason = "respawned"
	ReasonMaxAge             Reason = "max-age"
)

// RemovedBy builds the reason used when the host removes the entity.
func RemovedBy(cause string) Reason {
	if cause == "" {
		return "removed"
	}
	return Reason("removed: " + cause)
}

// Action is the outcome of a CheckAndTrack call.
type Action int

const (
	ActionNone Action = iota
	ActionCreated
	ActionRefreshed
	ActionLeft
	ActionStopped
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionRefreshed:
		return "refreshed"
	case ActionLeft:
		return "left"
	case ActionStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Respawner takes over a flagged record when it stops being tracked.
type Respawner interface {
	Respawn(rec core.TrackedRecord, world core.WorldRef) (core.ID, error)
}

// StopFunc is called after a record has been removed from the registry,
// outside the registry lock.
type StopFunc func(rec core.TrackedRecord, reason Reason)

// Config holds the registry timeouts.
type Config struct {
	// Grace is how long a record may stay outside the feature before it is
	// dropped.
	Grace time.Duration
	// MaxAge bounds record lifetime regardless of state; enforced by Cleanup.
	MaxAge time.Duration
}

// DefaultConfig returns the stock timeouts.
func DefaultConfig() Config {
	return Config{
		Grace:  2000 * time.Millisecond,
		MaxAge: 5 * time.Minute,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

type entry struct {
	rec core.TrackedRecord
	seq uint64
}

// Registry maps projectile ids to tracked records.
type Registry struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	records map[core.ID]*entry
	seq     uint64

	hooksMu   sync.RWMutex
	respawner Respawner
	onStop    []StopFunc
}

// New creates an empty registry.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		records: make(map[core.ID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetRespawner installs the hand-off target for flagged records.
func (r *Registry) SetRespawner(rs Respawner) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.respawner = rs
}

// OnStop registers fn to run after every removal.
func (r *Registry) OnStop(fn StopFunc) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onStop = append(r.onStop, fn)
}

// CheckAndTrack applies one per-tick observation of p.
func (r *Registry) CheckAndTrack(p core.Projectile, inFeature bool) Action {
	now := r.now()

	r.mu.Lock()
	e, ok := r.records[p.ID]
	switch {
	case !ok && !inFeature:
		r.mu.Unlock()
		return ActionNone

	case !ok:
		r.insertLocked(p, now)
		count := len(r.records)
		r.mu.Unlock()
		r.logger.Info("Started tracking projectile",
			"projectile", p.ID, "item", p.Payload.Item, "position", p.Position.String(), "tracked", count)
		return ActionCreated

	case inFeature:
		e.rec.LastSeenAt = now
		e.rec.InFeature = true
		if p.World != "" {
			e.rec.World = p.World
		}
		r.mu.Unlock()
		return ActionRefreshed
	}

	e.rec.InFeature = false
	if now.Sub(e.rec.LastSeenAt) <= r.cfg.Grace {
		r.mu.Unlock()
		return ActionLeft
	}
	delete(r.records, p.ID)
	rec := e.rec
	r.mu.Unlock()

	r.finishStop(rec, ReasonFeatureExitTimeout)
	return ActionStopped
}

// StartTracking inserts a fresh record for p if none exists.
func (r *Registry) StartTracking(p core.Projectile) bool {
	now := r.now()

	r.mu.Lock()
	if _, ok := r.records[p.ID]; ok {
		r.mu.Unlock()
		return false
	}
	r.insertLocked(p, now)
	count := len(r.records)
	r.mu.Unlock()

	r.logger.Info("Started tracking projectile",
		"projectile", p.ID, "item", p.Payload.Item, "position", p.Position.String(), "tracked", count)
	return true
}

func (r *Registry) insertLocked(p core.Projectile, now time.Time) {
	r.seq++
	r.records[p.ID] = &entry{
		seq: r.seq,
		rec: core.TrackedRecord{
			ID:         p.ID,
			Payload:    p.Payload.Clone(),
			Position:   p.Position,
			Velocity:   p.Velocity,
			World:      p.World,
			StartedAt:  now,
			LastSeenAt: now,
			InFeature:  true,
		},
	}
}

// StopTracking removes the record for id. A miss is a no-op and returns
// false. A flagged record with a respawn world is handed to the respawner
// before this returns, except when reason is ReasonRespawned.
func (r *Registry) StopTracking(id core.ID, reason Reason) bool {
	r.mu.Lock()
	e, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("Stop for untracked projectile", "projectile", id, "reason", string(reason))
		return false
	}
	delete(r.records, id)
	rec := e.rec
	r.mu.Unlock()

	r.finishStop(rec, reason)
	return true
}

// Take removes the record for id and returns it without a hand-off or stop
// listeners. Once the record is taken no other stop can hand it off, so the
// caller owns the respawn and finishes with Release.
func (r *Registry) Take(id core.ID) (core.TrackedRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok {
		return core.TrackedRecord{}, false
	}
	delete(r.records, id)
	return e.rec, true
}

// Release runs the stop listeners for a record removed by Take.
func (r *Registry) Release(rec core.TrackedRecord, reason Reason) {
	r.logger.Info("Stopped tracking projectile",
		"projectile", rec.ID, "reason", string(reason), "tracked", r.Len())
	r.notifyStop(rec, reason)
}

func (r *Registry) finishStop(rec core.TrackedRecord, reason Reason) {
	r.logger.Info("Stopped tracking projectile",
		"projectile", rec.ID, "reason", string(reason), "tracked", r.Len())

	r.hooksMu.RLock()
	respawner := r.respawner
	r.hooksMu.RUnlock()

	if reason != ReasonRespawned && rec.MarkedForRespawn && rec.RespawnWorld != "" && respawner != nil {
		r.logger.Info("Respawning flagged projectile on stop", "projectile", rec.ID, "world", string(rec.RespawnWorld))
		if _, err := respawner.Respawn(rec, rec.RespawnWorld); err != nil {
			r.logger.Debug("Hand-off on stop failed", "projectile", rec.ID, "error", err)
		}
	}

	r.notifyStop(rec, reason)
}

func (r *Registry) notifyStop(rec core.TrackedRecord, reason Reason) {
	r.hooksMu.RLock()
	listeners := make([]StopFunc, len(r.onStop))
	copy(listeners, r.onStop)
	r.hooksMu.RUnlock()

	for _, fn := range listeners {
		fn(rec, reason)
	}
}

// Cleanup removes every record whose age reached MaxAge. No hand-off is
// performed. Returns the number of removed records.
func (r *Registry) Cleanup() int {
	now := r.now()

	r.mu.Lock()
	var expired []core.TrackedRecord
	for id, e := range r.records {
		if e.rec.Age(now) >= r.cfg.MaxAge {
			expired = append(expired, e.rec)
			delete(r.records, id)
		}
	}
	r.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	r.hooksMu.RLock()
	listeners := make([]StopFunc, len(r.onStop))
	copy(listeners, r.onStop)
	r.hooksMu.RUnlock()

	for _, rec := range expired {
		r.logger.Debug("Cleaned up old projectile record", "projectile", rec.ID, "age", rec.Age(now))
		for _, fn := range listeners {
			fn(rec, ReasonMaxAge)
		}
	}
	return len(expired)
}

// MarkForRespawn flags the record and captures its current world as the
// respawn world. Returns the captured world and false on a miss.
func (r *Registry) MarkForRespawn(id core.ID) (core.WorldRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok {
		return "", false
	}
	e.rec.MarkedForRespawn = true
	e.rec.RespawnWorld = e.rec.World
	return e.rec.RespawnWorld, true
}

// Unmark clears the respawn flag and world of the record for id. Returns
// true only when a flag was cleared.
func (r *Registry) Unmark(id core.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok || !e.rec.MarkedForRespawn {
		return false
	}
	e.rec.MarkedForRespawn = false
	e.rec.RespawnWorld = ""
	return true
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id core.ID) (core.TrackedRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok {
		return core.TrackedRecord{}, false
	}
	return e.rec, true
}

// IsTracked reports whether id has a record.
func (r *Registry) IsTracked(id core.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	return ok
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Snapshot returns copies of all records in insertion order.
func (r *Registry) Snapshot() []core.TrackedRecord {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.records))
	for _, e := range r.records {
		entries = append(entries, e)
	}
	out := make([]core.TrackedRecord, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for i, e := range entries {
		out[i] = e.rec
	}
	r.mu.Unlock()
	return out
}
