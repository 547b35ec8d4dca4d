package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/tracking"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnCall struct {
	id       core.ID
	world    core.WorldRef
	pos      core.Vec3
	payload  core.Payload
	velocity core.Vec3
}

type fakeSpawner struct {
	mu      sync.Mutex
	calls   []spawnCall
	err     error
	panic   bool
	onSpawn func()
}

func (f *fakeSpawner) Spawn(world core.WorldRef, pos core.Vec3, payload core.Payload, velocity core.Vec3) (core.ID, error) {
	if f.panic {
		panic("host adapter exploded")
	}
	if f.onSpawn != nil {
		f.onSpawn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return core.NilID, f.err
	}
	id := uuid.New()
	f.calls = append(f.calls, spawnCall{id, world, pos, payload, velocity})
	return id, nil
}

func (f *fakeSpawner) spawned() []spawnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]spawnCall(nil), f.calls...)
}

type eventLog struct {
	mu     sync.Mutex
	events []core.LifecycleEvent
}

func (l *eventLog) Record(e core.LifecycleEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []core.LifecycleKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.LifecycleKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	now     time.Time
	svc     *Service
	spawner *fakeSpawner
	events  *eventLog
}

func newFixture(t *testing.T, cfg config.EngineConfig) *fixture {
	t.Helper()
	f := &fixture{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		spawner: &fakeSpawner{},
		events:  &eventLog{},
	}
	svc, err := New(Options{
		Config:  cfg,
		Spawner: f.spawner,
		Sink:    f.events,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func arrow(pos core.Vec3) core.Projectile {
	return core.Projectile{
		ID: uuid.New(),
		Payload: core.Payload{
			Item:    core.ItemTippedArrow,
			Effects: []core.Effect{{ID: "minecraft:poison", Amplifier: 1, Duration: 5 * time.Second}},
		},
		Position: pos,
		Velocity: core.Vec3{X: 1, Y: -2, Z: 0.5},
		World:    "overworld",
	}
}

func victim(health float64, alive bool) core.Target {
	return core.Target{ID: uuid.New(), Health: health, MaxHealth: 20, Alive: alive, Living: true}
}

func cloudDeath(target core.Target) core.DamageEvent {
	target.Alive = false
	target.Health = 0
	return core.DamageEvent{
		Target:   target,
		Source:   core.DamageSource{Kind: "area_effect_cloud"},
		Amount:   6,
		WasAlive: true,
		Applied:  true,
	}
}

func TestNew_RequiresSpawner(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(config.EngineConfig{})
	assert.Equal(t, 2000*time.Millisecond, cfg.Grace)
	assert.Equal(t, 5*time.Minute, cfg.MaxAge)
	assert.Equal(t, 100, cfg.CleanupEveryTicks)
	assert.Equal(t, 10.0, cfg.HealthThreshold)
	assert.Equal(t, "area_effect_cloud", cfg.SourceKind)
	assert.Equal(t, 5000*time.Millisecond, cfg.RequestTTL)

	custom := withDefaults(config.EngineConfig{Grace: time.Second, SourceKind: "magic"})
	assert.Equal(t, time.Second, custom.Grace)
	assert.Equal(t, "magic", custom.SourceKind)
}

func TestScenario_LowHealthKillRespawns(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{X: 10, Y: 64, Z: -3})
	target := victim(5, true)

	// t=0 enters the feature
	assert.Equal(t, tracking.ActionCreated, f.svc.OnProjectileTick(p, true))

	// t=1 hits a weak target
	f.advance(time.Second)
	assert.True(t, f.svc.OnCollision(p.ID, target))
	rec, ok := f.svc.Record(p.ID)
	require.True(t, ok)
	assert.True(t, rec.MarkedForRespawn)
	assert.Equal(t, core.WorldRef("overworld"), rec.RespawnWorld)

	// t=2 target dies in the cloud
	f.advance(time.Second)
	id, ok := f.svc.OnDamagePost(cloudDeath(target))
	require.True(t, ok)
	assert.Equal(t, p.ID, id)
	assert.True(t, f.svc.IsPersistent(p.ID))

	stats := f.svc.OnServerTick()
	assert.Equal(t, 1, stats.Respawned)

	calls := f.spawner.spawned()
	require.Len(t, calls, 1)
	assert.Equal(t, p.Position, calls[0].pos)
	assert.Equal(t, core.Vec3{}, calls[0].velocity)
	assert.Equal(t, core.WorldRef("overworld"), calls[0].world)
	assert.Equal(t, p.Payload, calls[0].payload)

	assert.False(t, f.svc.IsTracked(p.ID))
	assert.True(t, f.svc.IsTracked(calls[0].id))
	assert.False(t, f.svc.IsPersistent(p.ID))

	assert.Equal(t, []core.LifecycleKind{
		core.LifecycleTracked,
		core.LifecycleFlagged,
		core.LifecycleConfirmed,
		core.LifecycleScheduled,
		core.LifecycleRespawned,
		core.LifecycleUntracked,
	}, f.events.kinds())

	s := f.svc.Stats()
	assert.Equal(t, 1, s.Tracked)
	assert.Equal(t, 0, s.Persistent)
	assert.Equal(t, uint64(1), s.Scheduled)
	assert.Equal(t, uint64(1), s.Respawned)
}

func TestScenario_HealthyTargetNeverFlagged(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{X: 1})
	target := victim(50, true)

	f.svc.OnProjectileTick(p, true)
	f.advance(time.Second)
	assert.False(t, f.svc.OnCollision(p.ID, target))

	// Dies later from something else entirely.
	f.advance(time.Second)
	death := cloudDeath(target)
	death.Source.Kind = "fall"
	_, ok := f.svc.OnDamagePost(death)
	assert.False(t, ok)

	// Even a matching source does not confirm an unflagged projectile.
	_, ok = f.svc.OnDamagePost(cloudDeath(target))
	assert.False(t, ok)

	f.svc.OnServerTick()
	assert.Empty(t, f.spawner.spawned())
	assert.True(t, f.svc.IsTracked(p.ID))
	assert.False(t, f.svc.IsPersistent(p.ID))
}

func TestScenario_StaleRequestExpires(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{X: 1})
	target := victim(4, true)

	f.svc.OnProjectileTick(p, true)
	f.svc.OnCollision(p.ID, target)
	_, ok := f.svc.OnDamagePost(cloudDeath(target))
	require.True(t, ok)

	f.advance(6000 * time.Millisecond)
	stats := f.svc.OnServerTick()
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 0, stats.Respawned)
	assert.Empty(t, f.spawner.spawned())
	assert.Equal(t, uint64(1), f.svc.Stats().Expired)
	assert.Contains(t, f.events.kinds(), core.LifecycleExpired)

	assert.False(t, f.svc.IsPersistent(p.ID), "stale projectile may despawn normally")
	f.svc.OnRemoved(p.ID, "despawn")
	assert.Empty(t, f.spawner.spawned(), "no entity is spawned for a stale request")
}

func TestOnRemoved_DuringRespawnSpawnsOnce(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{X: 3, Y: 64})
	target := victim(5, true)

	f.svc.OnProjectileTick(p, true)
	require.True(t, f.svc.OnCollision(p.ID, target))
	_, ok := f.svc.OnDamagePost(cloudDeath(target))
	require.True(t, ok)

	f.spawner.onSpawn = func() { f.svc.OnRemoved(p.ID, "discarded") }
	stats := f.svc.OnServerTick()

	assert.Equal(t, 1, stats.Respawned)
	assert.Len(t, f.spawner.spawned(), 1)
	assert.Equal(t, 1, f.svc.Stats().Tracked, "only the replacement is tracked")
	assert.False(t, f.svc.IsTracked(p.ID))
	assert.False(t, f.svc.IsPersistent(p.ID))
}

func TestOnProjectileTick_IgnoresUnclassifiedPayload(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{})
	p.Payload = core.Payload{Item: "minecraft:arrow"}

	assert.Equal(t, tracking.ActionNone, f.svc.OnProjectileTick(p, true))
	assert.False(t, f.svc.IsTracked(p.ID))
	assert.Empty(t, f.events.kinds())
}

func TestOnProjectileTick_GraceThenStop(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{})

	f.svc.OnProjectileTick(p, true)
	f.advance(1500 * time.Millisecond)
	assert.Equal(t, tracking.ActionLeft, f.svc.OnProjectileTick(p, false))
	f.advance(time.Second)
	assert.Equal(t, tracking.ActionStopped, f.svc.OnProjectileTick(p, false))
	assert.False(t, f.svc.IsTracked(p.ID))
	assert.Equal(t, []core.LifecycleKind{core.LifecycleTracked, core.LifecycleUntracked}, f.events.kinds())
}

func TestOnRemoved_FlaggedRecordHandsOff(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	p := arrow(core.Vec3{Y: 70})
	f.svc.OnProjectileTick(p, true)
	require.True(t, f.svc.OnCollision(p.ID, victim(2, true)))

	f.svc.OnRemoved(p.ID, "discarded")
	f.svc.OnRemoved(p.ID, "discarded")

	require.Len(t, f.spawner.spawned(), 1)
	assert.False(t, f.svc.IsTracked(p.ID))
	assert.Equal(t, 1, f.svc.Stats().Tracked)
}

func TestOnServerTick_CleanupCadence(t *testing.T) {
	f := newFixture(t, config.EngineConfig{CleanupEveryTicks: 3})
	var published []core.Stats
	f.svc.OnStats(func(s core.Stats) { published = append(published, s) })

	p := arrow(core.Vec3{})
	f.svc.OnProjectileTick(p, true)
	f.advance(5 * time.Minute)

	f.svc.OnServerTick()
	f.svc.OnServerTick()
	assert.True(t, f.svc.IsTracked(p.ID))
	assert.Empty(t, published)

	f.svc.OnServerTick()
	assert.False(t, f.svc.IsTracked(p.ID))
	require.Len(t, published, 1)
	assert.Equal(t, uint64(3), published[0].Tick)
	assert.Equal(t, uint64(1), published[0].Cleaned)
	assert.Contains(t, f.events.kinds(), core.LifecycleCleaned)
}

func TestOnServerTick_SpawnFailureCounted(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	f.spawner.err = errors.New("chunk not loaded")
	p := arrow(core.Vec3{})
	target := victim(1, true)

	f.svc.OnProjectileTick(p, true)
	f.svc.OnCollision(p.ID, target)
	f.svc.OnDamagePost(cloudDeath(target))

	stats := f.svc.OnServerTick()
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, f.svc.IsTracked(p.ID))
	assert.Equal(t, uint64(1), f.svc.Stats().Failed)
	assert.Contains(t, f.events.kinds(), core.LifecycleSpawnFailed)
}

func TestHooks_RecoverPanics(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	f.spawner.panic = true
	p := arrow(core.Vec3{})
	target := victim(1, true)

	f.svc.OnProjectileTick(p, true)
	f.svc.OnCollision(p.ID, target)
	f.svc.OnDamagePost(cloudDeath(target))

	assert.NotPanics(t, func() { f.svc.OnServerTick() })
}

func TestLogContext(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})
	f.svc.OnProjectileTick(arrow(core.Vec3{}), true)

	attrs := f.svc.LogContext()
	require.Len(t, attrs, 3)
	assert.Equal(t, "tracked", attrs[0].Key)
	assert.Equal(t, int64(1), attrs[0].Value.Int64())
}
