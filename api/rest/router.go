package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/cache"
	"github.com/kasuganosora/progression/config"
	mw "github.com/kasuganosora/progression/middleware"
	"github.com/kasuganosora/progression/progression/engine"
	"github.com/kasuganosora/progression/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ServiceKeyHeader = "X-Service-Key"
	AdminKeyHeader   = "X-Admin-Key"
)

// NewRouter builds the HTTP surface. ctx bounds the rate limiter's
// background cleanup. sched may be nil.
func NewRouter(ctx context.Context, cfg *config.Config, eng *engine.Engine, sched *scheduler.Scheduler, c cache.Cache, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	events := NewEventHandler(eng)
	learners := NewLearnerHandler(eng)
	board := NewLeaderboardHandler(eng)
	admin := NewAdminHandler(eng, sched)
	limit := mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	service := mw.KeyAuth(ServiceKeyHeader, cfg.Server.ServiceKey)

	api := r.Group("/api")
	{
		api.POST("/events", service, events.Submit)
		api.GET("/leaderboard", limit, board.Top)

		byID := api.Group("/learners/:id", service)
		byID.GET("/stats", learners.Stats)
		byID.GET("/badges", learners.Badges)
		byID.GET("/missions", learners.Missions)
		byID.GET("/xp-history", learners.XPHistory)

		me := api.Group("/me", mw.LearnerAuth(cfg.Security.JWTSecret, c), limit)
		me.GET("/stats", learners.Stats)
		me.GET("/badges", learners.Badges)
		me.GET("/missions", learners.Missions)
		me.GET("/xp-history", learners.XPHistory)

		internal := api.Group("/internal", service)
		internal.PUT("/learners/:id", learners.Sync)

		adminG := api.Group("/admin", mw.IPWhitelist(cfg.Server.AdminIPs), mw.KeyAuth(AdminKeyHeader, cfg.Server.AdminKey))
		adminG.POST("/learners/:id/xp-correction", admin.CorrectXP)
		adminG.POST("/missions/reset", admin.ResetMissions)
		adminG.POST("/missions/settle", admin.SettleMissions)
		adminG.POST("/leaderboard/refresh", admin.RefreshLeaderboard)
		adminG.GET("/events", admin.Events)
		adminG.GET("/scheduler", admin.Scheduler)
		adminG.POST("/scheduler/:name/run", admin.RunJob)
		adminG.DELETE("/scheduler/:name", admin.RemoveJob)
	}
	return r
}
