package rest

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/audit"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/scheduler"
	"github.com/nexurateam/nexura-app-sub001/wallet"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Auditor receives admin actions.
type Auditor interface {
	Log(entry audit.Entry)
}

func record(a Auditor, c *gin.Context, action string, req any, err error) {
	if a == nil {
		return
	}
	e := audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  "admin",
		Action:  action,
		Request: req,
		IP:      c.ClientIP(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	sched  *scheduler.Scheduler
	audit  *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. audit may be nil.
func NewAdminHandler(db *gorm.DB, sched *scheduler.Scheduler, auditSvc *audit.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, sched: sched, audit: auditSvc, logger: logger}
}

func (h *AdminHandler) auditor() Auditor {
	if h.audit == nil {
		return nil
	}
	return h.audit
}

// ListBans handles GET /api/admin/bans.
func (h *AdminHandler) ListBans(c *gin.Context) {
	var bans []model.BannedUser
	if err := h.db.WithContext(c.Request.Context()).Order("id DESC").Find(&bans).Error; err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans, "count": len(bans)})
}

type banRequest struct {
	UserID        string `json:"user_id" binding:"omitempty,max=36"`
	WalletAddress string `json:"wallet_address" binding:"required_without=UserID"`
	Reason        string `json:"reason" binding:"max=255"`
}

// CreateBan handles POST /api/admin/bans.
// Either field identifies the user; the other is filled from the users table.
func (h *AdminHandler) CreateBan(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id or wallet_address required"})
		return
	}
	if req.WalletAddress != "" {
		addr, err := wallet.NormalizeAddress(req.WalletAddress)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
			return
		}
		req.WalletAddress = addr
	}

	db := h.db.WithContext(c.Request.Context())
	var user model.User
	q := db.Where("id = ?", req.UserID)
	if req.UserID == "" {
		q = db.Where("wallet_address = ?", req.WalletAddress)
	}
	if err := q.First(&user).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	} else if err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	if req.WalletAddress != "" && req.WalletAddress != user.WalletAddress {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and wallet_address do not match"})
		return
	}

	ban := model.BannedUser{UserID: user.ID, WalletAddress: user.WalletAddress, Reason: req.Reason}
	err := db.Create(&ban).Error
	record(h.auditor(), c, "ban.create", req, err)
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already banned"})
			return
		}
		respondError(c, h.logger, err, "db error")
		return
	}
	h.logger.Info("user banned", zap.String("user_id", ban.UserID))
	c.JSON(http.StatusOK, gin.H{"ban": ban})
}

// DeleteBan handles DELETE /api/admin/bans/:id.
func (h *AdminHandler) DeleteBan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&model.BannedUser{}, id)
	record(h.auditor(), c, "ban.delete", gin.H{"id": id}, res.Error)
	if res.Error != nil {
		respondError(c, h.logger, res.Error, "db error")
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "ban not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type timerRequest struct {
	EndsAt time.Time `json:"ends_at" binding:"required"`
}

// SetTimer handles PUT /api/admin/timers/:name.
func (h *AdminHandler) SetTimer(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	var req timerRequest
	if err := c.ShouldBindJSON(&req); err != nil || name == "" || len(name) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at (RFC 3339) required"})
		return
	}
	t := model.Timer{Name: name, EndsAt: req.EndsAt.UTC()}
	err := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"ends_at", "updated_at"}),
	}).Create(&t).Error
	record(h.auditor(), c, "timer.set", gin.H{"name": name, "ends_at": t.EndsAt}, err)
	if err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": t})
}

// ListSchedulerTasks returns the registered ticker tasks and pending jobs.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks":   h.sched.ListTickers(),
		"pending": h.sched.PendingDelays(),
	})
}

// AuditLog handles GET /api/admin/audit?limit=N.
func (h *AdminHandler) AuditLog(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []model.AuditLog{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// adminKey may be a bcrypt hash. If adminKey is empty all admin endpoints are
// disabled (503) so the server cannot be deployed without protection.
func AdminAuth(adminKey string) gin.HandlerFunc {
	hashed := strings.HasPrefix(adminKey, "$2")
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		var ok bool
		if hashed {
			ok = key != "" && bcrypt.CompareHashAndPassword([]byte(adminKey), []byte(key)) == nil
		} else {
			ok = subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) == 1
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
