// Package testutil provides shared test fixtures.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/yukimura/gminor/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens an in-memory SQLite database with the full schema.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
