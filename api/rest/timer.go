package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TimerHandler serves dashboard countdowns.
type TimerHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewTimerHandler(db *gorm.DB, logger *zap.Logger) *TimerHandler {
	return &TimerHandler{db: db, logger: logger}
}

// Get handles GET /api/timers/:name.
func (h *TimerHandler) Get(c *gin.Context) {
	var t model.Timer
	err := h.db.WithContext(c.Request.Context()).Where("name = ?", c.Param("name")).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "timer not found"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	remaining := time.Until(t.EndsAt)
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"timer":             t,
		"remaining_seconds": int64(remaining / time.Second),
	})
}
