// Package convert maps core journal types to their GORM models and back.
package convert

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/internal/geo"
	"github.com/persistarrows/extension/internal/model"
	"github.com/persistarrows/extension/pkg/core"
	"gorm.io/datatypes"
)

func optionalID(id core.ID) *uuid.UUID {
	if id == core.NilID {
		return nil
	}
	v := id
	return &v
}

func idOrNil(id *uuid.UUID) core.ID {
	if id == nil {
		return core.NilID
	}
	return *id
}

// payloadToJSON returns "{}" for a missing payload.
func payloadToJSON(p *core.Payload) datatypes.JSON {
	if p == nil {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to its GORM model.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		ID:        s.ID,
		Host:      s.Host,
		Version:   s.Version,
		StartedAt: s.StartedAt,
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// CoreToLifecycleEvent converts a core.LifecycleEvent to its GORM model.
func CoreToLifecycleEvent(sessionID core.ID, e core.LifecycleEvent) model.LifecycleEvent {
	return model.LifecycleEvent{
		SessionID:     sessionID,
		Time:          e.At,
		Kind:          string(e.Kind),
		ProjectileID:  e.ProjectileID,
		ReplacementID: optionalID(e.ReplacementID),
		TargetID:      optionalID(e.TargetID),
		Reason:        e.Reason,
		Position:      geo.PointFromVec3(e.Position),
		World:         string(e.World),
		Payload:       payloadToJSON(e.Payload),
	}
}

// LifecycleEventToCore converts a GORM row back to a core.LifecycleEvent.
// An empty or "{}" payload yields a nil Payload.
func LifecycleEventToCore(m model.LifecycleEvent) core.LifecycleEvent {
	e := core.LifecycleEvent{
		At:            m.Time,
		Kind:          core.LifecycleKind(m.Kind),
		ProjectileID:  m.ProjectileID,
		ReplacementID: idOrNil(m.ReplacementID),
		TargetID:      idOrNil(m.TargetID),
		Reason:        m.Reason,
		Position:      geo.Vec3FromPoint(m.Position),
		World:         core.WorldRef(m.World),
	}
	if len(m.Payload) > 0 && string(m.Payload) != "{}" {
		var p core.Payload
		if err := json.Unmarshal(m.Payload, &p); err == nil {
			e.Payload = &p
		}
	}
	return e
}

// CoreToStatsSample converts a core.Stats to its GORM model.
func CoreToStatsSample(sessionID core.ID, s core.Stats) model.StatsSample {
	return model.StatsSample{
		SessionID:  sessionID,
		Time:       s.At,
		Tick:       s.Tick,
		Tracked:    s.Tracked,
		Pending:    s.Pending,
		Persistent: s.Persistent,
		Candidates: s.Candidates,
		Scheduled:  s.Scheduled,
		Respawned:  s.Respawned,
		Expired:    s.Expired,
		Failed:     s.Failed,
		Cleaned:    s.Cleaned,
	}
}
