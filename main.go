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
	apirest "github.com/nexurateam/nexura-app-sub001/api/rest"
	"github.com/nexurateam/nexura-app-sub001/audit"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/config"
	dbadapter "github.com/nexurateam/nexura-app-sub001/db"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"github.com/nexurateam/nexura-app-sub001/ratelimit"
	"github.com/nexurateam/nexura-app-sub001/scheduler"
	"github.com/nexurateam/nexura-app-sub001/social/discord"
	"github.com/nexurateam/nexura-app-sub001/social/twitter"
	"github.com/nexurateam/nexura-app-sub001/tokenbox"
	"github.com/nexurateam/nexura-app-sub001/verify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
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
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is required")
	}
	if cfg.Security.TokenKey == "" {
		logger.Warn("security.token_key is not set; discord tokens are stored unsealed")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer dbadapter.Close(db)
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache ----
	kv, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		KeyPrefix:       cfg.Cache.KeyPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	defer kv.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Rate limiters ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	var global, signIn ratelimit.Limiter
	if rdb, ok := cache.RedisClient(kv); ok {
		global = ratelimit.NewRedisRate(rdb, cfg.Cache.KeyPrefix+"rl:global:", cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		signIn = ratelimit.NewRedis(rdb, cfg.Cache.KeyPrefix+"rl:signin:", cfg.Security.SignIn.Max, cfg.Security.SignIn.Window)
	} else {
		bucket := ratelimit.NewBucket(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
		sched.AddTicker("ratelimit_sweep", time.Minute, func(context.Context) {
			if n := bucket.Sweep(); n > 0 {
				logger.Debug("rate limiter keys evicted", zap.Int("count", n))
			}
		})
		local := ratelimit.NewLocal(cfg.Security.SignIn.Max, cfg.Security.SignIn.Window)
		sched.AddTicker("signin_limiter_sweep", 10*time.Minute, func(context.Context) { local.Sweep() })
		global, signIn = bucket, local
	}

	// ---- Services ----
	auditSvc := audit.New(db, logger)
	hc := &http.Client{Timeout: 15 * time.Second}
	quests := quest.NewService(db, logger)
	verifier := verify.NewService(
		db, kv, quests,
		twitter.NewClient(cfg.Twitter, hc, logger),
		discord.NewClient(cfg.Discord, hc),
		tokenbox.New(cfg.Security.TokenKey),
		logger,
	)

	sched.AddTicker("quest_expiry_sweep", cfg.Quest.SweepInterval, func(ctx context.Context) {
		if _, err := quests.SweepExpired(ctx); err != nil {
			logger.Warn("quest sweep failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := apirest.NewRouter(apirest.Deps{
		Config:    cfg,
		DB:        db,
		Cache:     kv,
		Quests:    quests,
		Verifier:  verifier,
		Scheduler: sched,
		Audit:     auditSvc,
		Global:    global,
		SignIn:    signIn,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(shutdownCtx)
}
