package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/api/rest"
	"github.com/kasuganosora/progression/audit"
	"github.com/kasuganosora/progression/cache"
	"github.com/kasuganosora/progression/config"
	dbadapter "github.com/kasuganosora/progression/db"
	"github.com/kasuganosora/progression/hook"
	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/catalog"
	"github.com/kasuganosora/progression/progression/engine"
	"github.com/kasuganosora/progression/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Server.ServiceKey == "" {
		logger.Warn("server.service_key is not set; event intake is disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is not set; /api/me endpoints are disabled")
	}

	loc, err := cfg.Progression.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache ----
	c, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Catalog ----
	file, err := catalog.Load(cfg.Progression.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	cat := catalog.Compile(file)
	for _, p := range cat.Problems {
		logger.Warn("catalog entry skipped", zap.Error(p))
	}
	if err := catalog.Seed(context.Background(), db, cat); err != nil {
		log.Fatalf("catalog seed: %v", err)
	}
	logger.Info("Catalog loaded",
		zap.Int("levels", cat.Levels.MaxLevel()),
		zap.Int("badges", len(cat.Badges)),
		zap.Int("missions", len(cat.Missions)))

	// ---- Audit ----
	auditSvc := audit.New(db, logger, audit.Options{
		Buffer:        cfg.Audit.Buffer,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})
	defer auditSvc.Stop(context.Background())

	// ---- Hooks ----
	hooks := hook.NewHookCenter(logger)
	for _, event := range []string{hook.LevelUp, hook.BadgeEarned, hook.MissionCompleted} {
		hooks.Register(event, 100, "log", func(_ context.Context, n hook.Notification) error {
			logger.Info("progression notification",
				zap.String("event", n.Event),
				zap.String("learner_id", n.LearnerID),
				zap.Int("to_level", n.ToLevel),
				zap.String("badge_id", n.BadgeID),
				zap.String("mission_id", n.MissionID))
			return nil
		})
	}

	eng := engine.Assemble(db, c, engine.Settings{
		XP:              cfg.Progression.XP,
		Levels:          cat.Levels,
		Location:        loc,
		LeaderboardSize: cfg.Progression.LeaderboardSize,
	}, hooks, auditSvc, logger)

	// ---- Scheduler ----
	sched, err := scheduler.New(logger, loc)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	defer sched.Stop()

	reset := func(typ model.MissionType) scheduler.TaskFn {
		return func(ctx context.Context) {
			n, err := eng.ResetMissions(ctx, typ)
			if err != nil {
				logger.Error("mission reset failed", zap.String("type", string(typ)), zap.Error(err))
				return
			}
			logger.Info("missions reset", zap.String("type", string(typ)), zap.Int64("rows", n))
		}
	}
	must := func(err error) {
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}
	must(sched.AddDaily("mission_reset_daily", 0, 0, reset(model.MissionDaily)))
	must(sched.AddWeekly("mission_reset_weekly", time.Monday, 0, 0, reset(model.MissionWeekly)))
	must(sched.AddTicker("leaderboard_refresh", cfg.Progression.LeaderboardRefresh, func(ctx context.Context) {
		if _, err := eng.RefreshLeaderboard(ctx); err != nil {
			logger.Warn("leaderboard refresh failed", zap.Error(err))
		}
	}))
	// build the first snapshot shortly after boot instead of on the first read
	must(sched.AddDelay("leaderboard_warmup", 5*time.Second, func(ctx context.Context) {
		if _, err := eng.RefreshLeaderboard(ctx); err != nil {
			logger.Warn("leaderboard warmup failed", zap.Error(err))
		}
	}))
	must(sched.AddTicker("mission_settle", cfg.Progression.SettleInterval, func(ctx context.Context) {
		out, err := eng.SettleMissions(ctx)
		if err != nil {
			logger.Warn("mission settle failed", zap.Error(err))
			return
		}
		if len(out.Completed) > 0 || len(out.Pending) > 0 {
			logger.Info("missions settled", zap.Int("completed", len(out.Completed)), zap.Int("pending", len(out.Pending)))
		}
	}))

	// ---- HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           rest.NewRouter(ctx, cfg, eng, sched, c, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
