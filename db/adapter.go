package db

import (
	"fmt"

	"github.com/kasuganosora/progression/config"
	dbmysql "github.com/kasuganosora/progression/db/mysql"
	dbsqlite "github.com/kasuganosora/progression/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		return dbsqlite.OpenMemory()
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
