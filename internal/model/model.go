// Package model holds the GORM schema of the lifecycle journal.
package model

import (
	"time"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels lists every table of the journal schema in migration order.
var DatabaseModels = []interface{}{
	&JournalInfo{},
	&Session{},
	&LifecycleEvent{},
	&StatsSample{},
}

// JournalInfo records the schema version of a journal database.
type JournalInfo struct {
	gorm.Model
	SchemaVersion int    `json:"schemaVersion"`
	Generator     string `json:"generator" gorm:"size:127"`
}

func (*JournalInfo) TableName() string {
	return "journal_infos"
}

// Session is one run of the extension.
type Session struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Host      string     `json:"host" gorm:"size:127"`
	Version   string     `json:"version" gorm:"size:63"`
	StartedAt time.Time  `json:"startedAt" gorm:"index:idx_session_started_at"`
	EndedAt   *time.Time `json:"endedAt"`
}

func (*Session) TableName() string {
	return "sessions"
}

// LifecycleEvent is one step of a tracked projectile's life.
type LifecycleEvent struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uuid.UUID      `json:"sessionId" gorm:"type:uuid;index:idx_lifecycle_session_id"`
	Session       Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time      `json:"time" gorm:"index:idx_lifecycle_time"`
	Kind          string         `json:"kind" gorm:"size:31;index:idx_lifecycle_kind"`
	ProjectileID  uuid.UUID      `json:"projectileId" gorm:"type:uuid;index:idx_lifecycle_projectile_id"`
	ReplacementID *uuid.UUID     `json:"replacementId" gorm:"type:uuid"`
	TargetID      *uuid.UUID     `json:"targetId" gorm:"type:uuid"`
	Reason        string         `json:"reason" gorm:"size:255"`
	Position      geom.Point     `json:"position"`
	World         string         `json:"world" gorm:"size:127"`
	Payload       datatypes.JSON `json:"payload"`
}

func (*LifecycleEvent) TableName() string {
	return "lifecycle_events"
}

// StatsSample is a periodic snapshot of the engine counters.
type StatsSample struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID  uuid.UUID `json:"sessionId" gorm:"type:uuid;index:idx_stats_session_id"`
	Session    Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time       time.Time `json:"time" gorm:"index:idx_stats_time"`
	Tick       uint64    `json:"tick"`
	Tracked    int       `json:"tracked"`
	Pending    int       `json:"pending"`
	Persistent int       `json:"persistent"`
	Candidates int       `json:"candidates"`
	Scheduled  uint64    `json:"scheduled"`
	Respawned  uint64    `json:"respawned"`
	Expired    uint64    `json:"expired"`
	Failed     uint64    `json:"failed"`
	Cleaned    uint64    `json:"cleaned"`
}

func (*StatsSample) TableName() string {
	return "stats_samples"
}
