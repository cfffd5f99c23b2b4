// Package store provides durable SQLite-backed storage for pull-request
// records, per-repository sync cursors, and cached weekly aggregates.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/yukimura/gminor/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if necessary) the SQLite database at path, applies
// the performance pragmas, and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := configure(db); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("database ready", "path", path)
	return db, nil
}

// configure applies SQLite pragmas: WAL so aggregation reads can proceed
// while sync workers write, plus the usual performance settings.
func configure(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate creates the three relations if they do not exist yet.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.PullRequest{},
		&domain.SyncCursor{},
		&domain.WeeklyAggregate{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
