// Package dbtest opens throwaway SQLite databases with the production schema.
package dbtest

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
)

// Open returns a migrated in-memory database scoped to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig(zap.NewNop()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// A second connection would see a different in-memory database.
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// FailQueries makes the next n queries on db fail with err before they reach
// the driver. The returned func reports how many queries were failed so far.
func FailQueries(t testing.TB, db *gorm.DB, n int, err error) func() int {
	t.Helper()
	const name = "dbtest:fail_queries"
	var (
		mu     sync.Mutex
		failed int
	)
	regErr := db.Callback().Query().Before("gorm:query").Register(name, func(tx *gorm.DB) {
		mu.Lock()
		defer mu.Unlock()
		if failed < n {
			failed++
			tx.AddError(err)
		}
	})
	if regErr != nil {
		t.Fatalf("register callback: %v", regErr)
	}
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return failed
	}
}
