// Package gormstorage implements storage.Backend on top of any GORM
// dialect. The sqlite and postgres packages supply the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/persistarrows/extension/internal/database"
	"github.com/persistarrows/extension/internal/model"
	"github.com/persistarrows/extension/internal/model/convert"
	"github.com/persistarrows/extension/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 500

var (
	// ErrNoDB is returned by Init when no connection was injected.
	ErrNoDB = errors.New("no database connection")
	// ErrNoSession is returned when recording outside a session.
	ErrNoSession = errors.New("no session started")
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB        *gorm.DB
	Logger    *slog.Logger
	Generator string
}

// Backend implements storage.Backend with synchronous batch inserts.
type Backend struct {
	deps Dependencies

	mu        sync.Mutex
	sessionID core.ID
	startedAt time.Time
	lastAt    time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Generator == "" {
		deps.Generator = "persistarrows"
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs the schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	if err := database.Migrate(b.deps.DB, b.deps.Generator, b.deps.Logger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the underlying sql connection.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	b.mu.Lock()
	b.sessionID = s.ID
	b.startedAt = s.StartedAt
	b.lastAt = s.StartedAt
	b.mu.Unlock()

	b.deps.Logger.Info("Journal session started", "sessionId", s.ID, "dialect", b.deps.DB.Dialector.Name())
	return nil
}

// EndSession stamps the session with the time of its last record.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	id, endedAt := b.sessionID, b.lastAt
	b.sessionID = core.NilID
	b.mu.Unlock()

	if id == core.NilID {
		return ErrNoSession
	}

	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", id).
		Update("ended_at", endedAt).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	b.deps.Logger.Info("Journal session ended", "sessionId", id)
	return nil
}

func (b *Backend) currentSession() (core.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionID == core.NilID {
		return core.NilID, ErrNoSession
	}
	return b.sessionID, nil
}

func (b *Backend) touch(at time.Time) {
	b.mu.Lock()
	if at.After(b.lastAt) {
		b.lastAt = at
	}
	b.mu.Unlock()
}

// RecordLifecycleEvents inserts the events in batches.
func (b *Backend) RecordLifecycleEvents(events []core.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	sessionID, err := b.currentSession()
	if err != nil {
		return err
	}

	rows := make([]model.LifecycleEvent, 0, len(events))
	for _, e := range events {
		rows = append(rows, convert.CoreToLifecycleEvent(sessionID, e))
		b.touch(e.At)
	}

	tx := b.deps.DB.Omit(clause.Associations).CreateInBatches(&rows, batchSize)
	if tx.Error != nil {
		return fmt.Errorf("failed to insert %d lifecycle events: %w", len(rows), tx.Error)
	}
	return nil
}

// RecordStats inserts one stats sample.
func (b *Backend) RecordStats(s *core.Stats) error {
	sessionID, err := b.currentSession()
	if err != nil {
		return err
	}

	row := convert.CoreToStatsSample(sessionID, *s)
	if err := b.deps.DB.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert stats: %w", err)
	}
	b.touch(s.At)
	return nil
}

// Events reads back the lifecycle events of a session in insertion order.
func (b *Backend) Events(sessionID core.ID) ([]core.LifecycleEvent, error) {
	var rows []model.LifecycleEvent
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.LifecycleEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, convert.LifecycleEventToCore(row))
	}
	return out, nil
}
