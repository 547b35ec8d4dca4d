package respawn

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/internal/persistence"
	"github.com/persistarrows/extension/internal/tracking"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnCall struct {
	world    core.WorldRef
	pos      core.Vec3
	payload  core.Payload
	velocity core.Vec3
}

type fakeSpawner struct {
	calls   []spawnCall
	err     error
	onSpawn func()
}

func (f *fakeSpawner) Spawn(world core.WorldRef, pos core.Vec3, payload core.Payload, velocity core.Vec3) (core.ID, error) {
	f.calls = append(f.calls, spawnCall{world, pos, payload, velocity})
	if f.onSpawn != nil {
		f.onSpawn()
	}
	if f.err != nil {
		return core.NilID, f.err
	}
	return uuid.New(), nil
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
	now       time.Time
	registry  *tracking.Registry
	gate      *persistence.Gate
	spawner   *fakeSpawner
	respawner *Respawner
	scheduler *Scheduler
	events    *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		spawner: &fakeSpawner{},
		events:  &eventLog{},
		gate:    persistence.NewGate(),
	}
	clock := func() time.Time { return f.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.registry = tracking.New(tracking.DefaultConfig(), logger, tracking.WithClock(clock))
	f.respawner = NewRespawner(f.spawner, f.registry, logger,
		WithEventSink(f.events), WithRespawnerClock(clock))
	f.registry.SetRespawner(f.respawner)
	f.registry.OnStop(func(rec core.TrackedRecord, _ tracking.Reason) { f.gate.Clear(rec.ID) })
	f.scheduler = NewScheduler(f.registry, f.respawner, logger,
		WithSchedulerClock(clock), WithSchedulerSink(f.events), WithSchedulerGate(f.gate))
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) trackFlagged(t *testing.T, payload core.Payload) core.TrackedRecord {
	t.Helper()
	p := core.Projectile{
		ID:       uuid.New(),
		Payload:  payload,
		Position: core.Vec3{X: 4, Y: 65, Z: 9},
		Velocity: core.Vec3{Y: -0.2},
		World:    "the_nether",
	}
	require.True(t, f.registry.StartTracking(p))
	_, ok := f.registry.MarkForRespawn(p.ID)
	require.True(t, ok)
	rec, _ := f.registry.Get(p.ID)
	return rec
}

func lingering() core.Payload {
	return core.Payload{
		Item:       core.ItemLingeringPotion,
		Effects:    []core.Effect{{ID: "minecraft:instant_damage", Amplifier: 1}},
		Attributes: map[string]string{"potion": "harming"},
	}
}

func TestRespawn_SpawnsAtCapturedPositionWithZeroVelocity(t *testing.T) {
	f := newFixture(t)
	rec := f.trackFlagged(t, lingering())

	newID, err := f.respawner.Respawn(rec, rec.RespawnWorld)
	require.NoError(t, err)

	require.Len(t, f.spawner.calls, 1)
	call := f.spawner.calls[0]
	assert.Equal(t, core.WorldRef("the_nether"), call.world)
	assert.Equal(t, rec.Position, call.pos)
	assert.True(t, call.velocity.IsZero())
	assert.Equal(t, rec.Payload, call.payload)

	assert.True(t, f.registry.IsTracked(newID), "qualifying replacement is re-tracked")
	replacement, _ := f.registry.Get(newID)
	assert.True(t, replacement.InFeature)
	assert.False(t, replacement.MarkedForRespawn)
	assert.Equal(t, []core.LifecycleKind{core.LifecycleRespawned}, f.events.kinds())
}

func TestRespawn_NonQualifyingReplacementNotTracked(t *testing.T) {
	f := newFixture(t)
	f.respawner = NewRespawner(f.spawner, f.registry, nil, WithClassifier(func(core.Payload) bool { return false }))
	rec := f.trackFlagged(t, lingering())

	newID, err := f.respawner.Respawn(rec, rec.RespawnWorld)
	require.NoError(t, err)
	assert.False(t, f.registry.IsTracked(newID))
}

func TestRespawn_Failures(t *testing.T) {
	f := newFixture(t)
	rec := f.trackFlagged(t, lingering())

	_, err := f.respawner.Respawn(rec, "")
	assert.ErrorIs(t, err, core.ErrInvalidWorld)
	assert.Empty(t, f.spawner.calls)

	f.spawner.err = core.ErrSpawnFailed
	_, err = f.respawner.Respawn(rec, rec.RespawnWorld)
	assert.ErrorIs(t, err, core.ErrSpawnFailed)
	assert.Equal(t, 1, f.registry.Len(), "failed spawn tracks nothing new")
	assert.Equal(t, []core.LifecycleKind{core.LifecycleSpawnFailed, core.LifecycleSpawnFailed}, f.events.kinds())
}

func TestDrain_RespawnsAndStopsOriginal(t *testing.T) {
	f := newFixture(t)
	rec := f.trackFlagged(t, lingering())

	f.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.advance(50 * time.Millisecond)
	stats := f.scheduler.Drain()
	assert.Equal(t, DrainStats{Processed: 1, Respawned: 1}, stats)
	assert.Equal(t, 0, f.scheduler.Pending())

	require.Len(t, f.spawner.calls, 1, "stopping with respawned reason does not hand off again")
	assert.False(t, f.registry.IsTracked(rec.ID))
	assert.Equal(t, 1, f.registry.Len(), "only the replacement remains")
}

func TestDrain_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name        string
		age         time.Duration
		wantExpired bool
	}{
		{"just under ttl", 4999 * time.Millisecond, false},
		{"exactly ttl", 5000 * time.Millisecond, true},
		{"long past ttl", 10 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.trackFlagged(t, lingering())
			f.gate.MarkPersistent(rec.ID)
			f.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)

			f.advance(tt.age)
			stats := f.scheduler.Drain()

			if tt.wantExpired {
				assert.Equal(t, 1, stats.Expired)
				assert.Empty(t, f.spawner.calls)
				assert.True(t, f.registry.IsTracked(rec.ID), "expired request keeps tracking")
				assert.False(t, f.gate.IsPersistent(rec.ID))
				left, _ := f.registry.Get(rec.ID)
				assert.False(t, left.MarkedForRespawn)

				f.registry.StopTracking(rec.ID, tracking.RemovedBy("despawn"))
				assert.Empty(t, f.spawner.calls, "stale projectile is not handed off later")
			} else {
				assert.Equal(t, 1, stats.Respawned)
				assert.Len(t, f.spawner.calls, 1)
			}
		})
	}
}

func TestDrain_RemovalDuringSpawnSpawnsOnce(t *testing.T) {
	f := newFixture(t)
	rec := f.trackFlagged(t, lingering())
	f.gate.MarkPersistent(rec.ID)

	var removed bool
	f.spawner.onSpawn = func() {
		removed = f.registry.StopTracking(rec.ID, tracking.RemovedBy("discarded"))
	}

	f.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)
	stats := f.scheduler.Drain()

	assert.Equal(t, 1, stats.Respawned)
	assert.False(t, removed, "original is already out of the registry while spawning")
	assert.Len(t, f.spawner.calls, 1)
	assert.Equal(t, 1, f.registry.Len(), "only the replacement remains")
	assert.False(t, f.gate.IsPersistent(rec.ID))
}

func TestDrain_MissingRecordDiscarded(t *testing.T) {
	f := newFixture(t)
	f.scheduler.Schedule(uuid.New(), core.Vec3{}, "overworld")

	stats := f.scheduler.Drain()
	assert.Equal(t, DrainStats{Processed: 1, Missing: 1}, stats)
	assert.Empty(t, f.spawner.calls)
}

func TestDrain_SpawnFailureStillStopsOriginal(t *testing.T) {
	f := newFixture(t)
	f.spawner.err = errors.New("chunk not loaded")
	rec := f.trackFlagged(t, lingering())

	f.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)
	stats := f.scheduler.Drain()

	assert.Equal(t, 1, stats.Failed)
	assert.False(t, f.registry.IsTracked(rec.ID))
	assert.Len(t, f.spawner.calls, 1, "no retry")
	assert.Equal(t, 0, f.scheduler.Drain().Processed)
}

func TestDrain_FIFO(t *testing.T) {
	f := newFixture(t)
	var ids []core.ID
	for range 5 {
		rec := f.trackFlagged(t, lingering())
		ids = append(ids, rec.ID)
		f.scheduler.Schedule(rec.ID, rec.Position, rec.RespawnWorld)
	}

	var order []core.ID
	f.registry.OnStop(func(rec core.TrackedRecord, reason tracking.Reason) {
		if reason == tracking.ReasonRespawned {
			order = append(order, rec.ID)
		}
	})

	stats := f.scheduler.Drain()
	assert.Equal(t, 5, stats.Respawned)
	assert.Equal(t, ids, order)
}

func TestDrain_Empty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DrainStats{}, f.scheduler.Drain())
}
