// Package memory keeps the lifecycle journal in memory and exports it as
// JSON when the session ends.
package memory

import (
	"errors"
	"sync"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/pkg/core"
)

// ErrNoSession is returned when recording outside a session.
var ErrNoSession = errors.New("no session started")

// ProjectileRecord groups every event seen for one projectile id.
type ProjectileRecord struct {
	ProjectileID core.ID
	Events       []core.LifecycleEvent
}

// Backend stores journal data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	projectiles map[core.ID]*ProjectileRecord
	order       []core.ID
	events      int
	stats       []core.Stats

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:         cfg,
		projectiles: make(map[core.ID]*ProjectileRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins a new journal session and resets all collections.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	session := *s
	b.session = &session
	b.projectiles = make(map[core.ID]*ProjectileRecord)
	b.order = nil
	b.events = 0
	b.stats = nil
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	if b.session.EndedAt.IsZero() {
		b.session.EndedAt = b.session.StartedAt
	}
	return b.exportJSON()
}

// RecordLifecycleEvents appends events grouped by projectile id.
func (b *Backend) RecordLifecycleEvents(events []core.LifecycleEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	for _, e := range events {
		record, ok := b.projectiles[e.ProjectileID]
		if !ok {
			record = &ProjectileRecord{ProjectileID: e.ProjectileID}
			b.projectiles[e.ProjectileID] = record
			b.order = append(b.order, e.ProjectileID)
		}
		record.Events = append(record.Events, e)
		b.events++
		if e.At.After(b.session.EndedAt) {
			b.session.EndedAt = e.At
		}
	}
	return nil
}

// RecordStats appends a stats sample.
func (b *Backend) RecordStats(s *core.Stats) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.stats = append(b.stats, *s)
	return nil
}

// GetProjectile returns the events recorded for a projectile.
func (b *Backend) GetProjectile(id core.ID) (*ProjectileRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.projectiles[id]
	if !ok {
		return nil, false
	}
	cp := &ProjectileRecord{ProjectileID: record.ProjectileID}
	cp.Events = append(cp.Events, record.Events...)
	return cp, true
}

// EventCount returns the number of events recorded in this session.
func (b *Backend) EventCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.events
}

// ExportedFilePath returns the path of the last export, or "".
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
