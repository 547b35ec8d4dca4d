package convert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreToSession(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := core.Session{ID: uuid.New(), Host: "sim", Version: "1.0.0", StartedAt: start}

	m := CoreToSession(s)
	assert.Equal(t, s.ID, m.ID)
	assert.Equal(t, "sim", m.Host)
	assert.Nil(t, m.EndedAt)

	s.EndedAt = start.Add(time.Hour)
	m = CoreToSession(s)
	require.NotNil(t, m.EndedAt)
	assert.Equal(t, s.EndedAt, *m.EndedAt)
}

func TestLifecycleEvent_Conversion(t *testing.T) {
	sessionID := uuid.New()
	payload := core.Payload{
		Item:    core.ItemTippedArrow,
		Effects: []core.Effect{{ID: "minecraft:poison", Amplifier: 1, Duration: time.Second}},
	}
	e := core.LifecycleEvent{
		At:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:          core.LifecycleRespawned,
		ProjectileID:  uuid.New(),
		ReplacementID: uuid.New(),
		Position:      core.Vec3{X: 1, Y: 2, Z: 3},
		World:         "overworld",
		Payload:       &payload,
	}

	m := CoreToLifecycleEvent(sessionID, e)
	assert.Equal(t, sessionID, m.SessionID)
	assert.Equal(t, "respawned", m.Kind)
	require.NotNil(t, m.ReplacementID)
	assert.Nil(t, m.TargetID, "nil target id is stored as NULL")
	assert.JSONEq(t, `{"item":"minecraft:tipped_arrow","effects":[{"id":"minecraft:poison","amplifier":1,"duration":1000000000}]}`, string(m.Payload))

	back := LifecycleEventToCore(m)
	assert.Equal(t, e, back)
}

func TestLifecycleEvent_NoPayload(t *testing.T) {
	m := CoreToLifecycleEvent(uuid.New(), core.LifecycleEvent{Kind: core.LifecycleExpired, ProjectileID: uuid.New()})
	assert.Equal(t, "{}", string(m.Payload))
	assert.Nil(t, LifecycleEventToCore(m).Payload)
}

func TestCoreToStatsSample(t *testing.T) {
	sessionID := uuid.New()
	s := core.Stats{Tick: 200, Tracked: 3, Pending: 1, Persistent: 1, Respawned: 7}

	m := CoreToStatsSample(sessionID, s)
	assert.Equal(t, sessionID, m.SessionID)
	assert.Equal(t, uint64(200), m.Tick)
	assert.Equal(t, 3, m.Tracked)
	assert.Equal(t, uint64(7), m.Respawned)
}
