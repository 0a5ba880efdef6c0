package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferralHandler lists the users a caller referred.
type ReferralHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewReferralHandler(db *gorm.DB, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{db: db, logger: logger}
}

// List handles GET /api/referrals.
func (h *ReferralHandler) List(c *gin.Context) {
	var refs []model.ReferredUser
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", mw.GetUserID(c)).
		Order("created_at DESC").
		Find(&refs).Error; err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	active := 0
	for _, r := range refs {
		if r.Status == model.ReferralActive {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{"referrals": refs, "total": len(refs), "active": active})
}
