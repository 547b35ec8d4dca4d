package journal

import (
	"fmt"
	"log/slog"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/storage"
	"github.com/persistarrows/extension/internal/storage/memory"
	"github.com/persistarrows/extension/internal/storage/postgres"
	sqlitestorage "github.com/persistarrows/extension/internal/storage/sqlite"
	"github.com/persistarrows/extension/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. Type "none"
// returns a nil backend and no error.
func NewBackend(cfg config.JournalConfig, log *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		b, err := sqlitestorage.New(cfg.SQLite, "persistarrows", log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "postgres":
		return postgres.New(cfg.Postgres, log), nil
	case "websocket":
		if cfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("websocket journal requires websocket.url")
		}
		return websocket.New(cfg.WebSocket, log), nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
