package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/database"
	"github.com/persistarrows/extension/internal/logging"
	"github.com/persistarrows/extension/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// migrateBackups copies every sqlite journal dump in dir into the configured
// postgres database. Each dump is migrated in its own transaction and renamed
// to .migrated on success.
func migrateBackups(configDir, dir string) error {
	logs := logging.NewSlogManager()
	logs.Setup(nil, "info", nil)
	logger := logs.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}

	sqlitePaths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}
	if len(sqlitePaths) == 0 {
		logger.Info("No backups found", "dir", dir)
		return nil
	}

	postgresDB, err := database.OpenPostgres(config.GetDBConfig())
	if err != nil {
		return fmt.Errorf("error getting postgres database: %w", err)
	}
	if err := database.Migrate(postgresDB, ExtensionName+" "+CurrentExtensionVersion, logger); err != nil {
		return err
	}

	successfulMigrations := make([]string, 0, len(sqlitePaths))
	for _, sqlitePath := range sqlitePaths {
		if err := migrateBackup(postgresDB, sqlitePath, logger); err != nil {
			return err
		}
		if err := os.Rename(sqlitePath, sqlitePath+".migrated"); err != nil {
			logger.Error("Error renaming sqlite file", "error", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	logger.Info("Successfully migrated backups, it's recommended to delete these to avoid future data duplication",
		"count", len(successfulMigrations),
		"paths", successfulMigrations)
	return nil
}

func migrateBackup(postgresDB *gorm.DB, sqlitePath string, logger *slog.Logger) error {
	sqliteDB, err := database.OpenSQLite(sqlitePath)
	if err != nil {
		return fmt.Errorf("error getting sqlite database %s: %w", sqlitePath, err)
	}
	defer func() {
		if sqlConnection, err := sqliteDB.DB(); err == nil {
			if err := sqlConnection.Close(); err != nil {
				logger.Error("Error closing sqlite connection", "error", err)
			}
		}
	}()

	// sessions first, events and samples reference them
	return postgresDB.Transaction(func(tx *gorm.DB) error {
		if err := migrateTable(sqliteDB, tx, "sessions", logger, func(*model.Session) {}); err != nil {
			return err
		}
		if err := migrateTable(sqliteDB, tx, "lifecycle_events", logger, func(e *model.LifecycleEvent) { e.ID = 0 }); err != nil {
			return err
		}
		return migrateTable(sqliteDB, tx, "stats_samples", logger, func(s *model.StatsSample) { s.ID = 0 })
	})
}

// migrateTable copies all rows of M from src to dst. reset clears fields
// that dst assigns itself, like autoincrement keys.
func migrateTable[M any](src, dst *gorm.DB, tableName string, logger *slog.Logger, reset func(*M)) error {
	var rows []M
	if err := src.Model(new(M)).Find(&rows).Error; err != nil {
		return fmt.Errorf("error reading %s: %w", tableName, err)
	}
	logger.Info("Found records", "count", len(rows), "table", tableName, "database", src.Name())
	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		reset(&rows[i])
	}

	err := dst.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 1000).Error
	if err != nil {
		return fmt.Errorf("error migrating %s: %w", tableName, err)
	}
	logger.Info("Inserted records", "count", len(rows), "table", tableName)
	return nil
}
