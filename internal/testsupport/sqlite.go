// Package testsupport holds shared fixtures for package tests and the local
// container harness.
package testsupport

import (
	"testing"

	gsqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/contentdb/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB creates a migrated in-memory SQLite database for one test. The pool
// is pinned to a single connection so every query sees the same memory
// database.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gsqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
