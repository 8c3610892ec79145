package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by an SQLite file. The directory is created
// if absent.
//
// SQLite allows one writer at a time, so the pool is pinned to a single
// connection. Transactions then queue in database/sql instead of failing
// with SQLITE_BUSY; code inside a transaction must only use the tx handle.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %q: %w", dir, err)
		}
	}
	return open(path + "?_busy_timeout=5000&_journal_mode=WAL")
}

// OpenMemory creates a private in-memory database. Each call returns an
// isolated database, which makes it suitable for parallel tests.
func OpenMemory() (*gorm.DB, error) {
	return open(":memory:")
}

func open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return db, nil
}
