// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with PostGIS point columns.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/database"
	gormstorage "github.com/persistarrows/extension/internal/storage/gorm"
)

// Backend connects to postgres on Init and delegates to the GORM backend.
type Backend struct {
	*gormstorage.Backend
	cfg config.DBConfig
	log *slog.Logger
}

// New creates a new postgres backend. No connection is made until Init.
func New(cfg config.DBConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log}
}

// Init connects, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	b.log.Debug("Connecting to Postgres DB", "host", b.cfg.Host, "port", b.cfg.Port, "database", b.cfg.Database)
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.log.Info("Connected to database")

	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.log})
	return b.Backend.Init()
}

// Close closes the connection if Init succeeded.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
