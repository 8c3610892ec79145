package engine

import (
	"time"

	"github.com/kasuganosora/progression/audit"
	"github.com/kasuganosora/progression/cache"
	"github.com/kasuganosora/progression/config"
	"github.com/kasuganosora/progression/hook"
	"github.com/kasuganosora/progression/progression/badge"
	"github.com/kasuganosora/progression/progression/directory"
	"github.com/kasuganosora/progression/progression/intake"
	"github.com/kasuganosora/progression/progression/leaderboard"
	"github.com/kasuganosora/progression/progression/ledger"
	"github.com/kasuganosora/progression/progression/level"
	"github.com/kasuganosora/progression/progression/mission"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Settings are the tunables Assemble needs.
type Settings struct {
	XP              config.XPConfig
	Levels          *level.Table
	Location        *time.Location
	LeaderboardSize int
}

// Assemble builds every progression service over one database and cache.
func Assemble(db *gorm.DB, c cache.Cache, s Settings, hooks *hook.HookCenter, journal *audit.Service, logger *zap.Logger) *Engine {
	if s.Levels == nil {
		s.Levels = level.Default()
	}
	dir := directory.NewService(db, logger)
	l := ledger.NewService(db, logger)
	b := badge.NewService(db, l, s.Levels, logger)
	return New(Deps{
		Intake:      intake.NewService(dir, s.XP),
		Directory:   dir,
		Ledger:      l,
		Levels:      s.Levels,
		Badges:      b,
		Missions:    mission.NewService(db, l, b, s.Location, logger),
		Leaderboard: leaderboard.NewService(db, c, s.Levels, s.LeaderboardSize, logger),
		Hooks:       hooks,
		Audit:       journal,
	}, logger)
}
