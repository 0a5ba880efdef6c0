package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/audit"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/config"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"github.com/nexurateam/nexura-app-sub001/ratelimit"
	"github.com/nexurateam/nexura-app-sub001/scheduler"
	"github.com/nexurateam/nexura-app-sub001/verify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Cache     cache.Cache
	Quests    *quest.Service
	Verifier  *verify.Service
	Scheduler *scheduler.Scheduler
	Audit     *audit.Service // optional
	// Global fronts every route; SignIn guards POST /api/auth/signin.
	Global ratelimit.Limiter
	SignIn ratelimit.Limiter
	Logger *zap.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	log := d.Logger

	r := gin.New()
	// Forwarding headers are honoured only from these peers; the socket
	// address is the client IP otherwise.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Warn("invalid trusted_proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(mw.TraceID(), mw.Logger(log), mw.Recovery(log))
	if d.Global != nil {
		r.Use(mw.RateLimit(d.Global, mw.RateLimitOptions{IPv6Subnet: cfg.Security.IPv6Subnet, Logger: log}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	var auditor Auditor
	if d.Audit != nil {
		auditor = d.Audit
	}

	authH := NewAuthHandler(d.DB, d.Cache, cfg.Security, log)
	userH := NewUserHandler(d.DB, log)
	questH := NewQuestHandler(d.Quests, NewExpiryScheduler(d.Scheduler, d.Quests, log), auditor, log)
	taskH := NewTaskHandler(d.Verifier, log)
	discordH := NewDiscordHandler(d.Verifier, cfg.Server.FrontendURL, log)
	refH := NewReferralHandler(d.DB, log)
	timerH := NewTimerHandler(d.DB, log)
	adminH := NewAdminHandler(d.DB, d.Scheduler, d.Audit, log)

	requireAuth := mw.Auth(cfg.Security, d.Cache)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.GET("/nonce", authH.Nonce)
		signIn := []gin.HandlerFunc{authH.SignIn}
		if d.SignIn != nil {
			signIn = append([]gin.HandlerFunc{mw.RateLimit(d.SignIn, mw.RateLimitOptions{
				Message:    cfg.Security.SignIn.Message,
				IPv6Subnet: cfg.Security.IPv6Subnet,
				Logger:     log,
			})}, signIn...)
		}
		authG.POST("/signin", signIn...)
		authG.POST("/logout", requireAuth, authH.Logout)
		authG.POST("/refresh", requireAuth, authH.Refresh)
		authG.GET("/discord", requireAuth, discordH.AuthURL)
		authG.GET("/discord/callback", requireAuth, discordH.Callback)

		api.GET("/timers/:name", timerH.Get)

		userG := api.Group("")
		userG.Use(requireAuth)
		userG.GET("/me", userH.Me)
		userG.POST("/users/me/twitter", userH.LinkTwitter)
		userG.GET("/quests", questH.List)
		userG.POST("/check-x/:id", taskH.CheckX)
		userG.POST("/check-discord/:id", taskH.CheckDiscord)
		userG.GET("/referrals", refH.List)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), AdminAuth(cfg.Server.AdminKey))
		adminG.POST("/quests", questH.Create)
		adminG.DELETE("/quests/:id", questH.Delete)
		adminG.GET("/bans", adminH.ListBans)
		adminG.POST("/bans", adminH.CreateBan)
		adminG.DELETE("/bans/:id", adminH.DeleteBan)
		adminG.PUT("/timers/:name", adminH.SetTimer)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/audit", adminH.AuditLog)
	}
	return r
}

// ExpiryScheduler sweeps a weekly quest out as soon as it expires.
// The periodic sweep remains the backstop across restarts.
type ExpiryScheduler struct {
	sched  *scheduler.Scheduler
	quests *quest.Service
	logger *zap.Logger
}

// NewExpiryScheduler returns nil when sched is nil.
func NewExpiryScheduler(sched *scheduler.Scheduler, quests *quest.Service, logger *zap.Logger) QuestScheduler {
	if sched == nil {
		return nil
	}
	return &ExpiryScheduler{sched: sched, quests: quests, logger: logger}
}

func (e *ExpiryScheduler) ScheduleExpiry(q *model.Quest) {
	if q.Expires == nil {
		return
	}
	delay := time.Until(*q.Expires) + time.Second
	e.sched.AddDelay("quest-expiry:"+q.ID, delay, func(ctx context.Context) {
		n, err := e.quests.SweepExpired(ctx)
		if err != nil {
			e.logger.Warn("quest expiry sweep failed", zap.String("quest_id", q.ID), zap.Error(err))
			return
		}
		e.logger.Info("quest expired", zap.String("quest_id", q.ID), zap.Int64("removed", n))
	})
}
