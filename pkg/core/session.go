package core

import "time"

// Session describes one run of the extension inside a host. Journal
// backends group lifecycle events and stats by session.
type Session struct {
	ID        ID        `json:"id"`
	Host      string    `json:"host"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// Stats is a point-in-time view of the engine counters.
type Stats struct {
	At         time.Time `json:"at"`
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
