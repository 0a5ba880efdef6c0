package rest

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var twitterIDPattern = regexp.MustCompile(`^[0-9]{1,32}$`)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserHandler(db *gorm.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, logger: logger}
}

func (h *UserHandler) current(c *gin.Context) (*model.User, bool) {
	var user model.User
	err := h.db.WithContext(c.Request.Context()).Where("id = ?", mw.GetUserID(c)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	if err != nil {
		respondError(c, h.logger, err, "db error")
		return nil, false
	}
	return &user, true
}

// Me handles GET /api/me.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := h.current(c)
	if !ok {
		return
	}
	var tokens int64
	if err := h.db.WithContext(c.Request.Context()).Model(&model.Token{}).
		Where("user_id = ?", user.ID).Count(&tokens).Error; err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"discord_linked": user.DiscordID != "" && tokens > 0,
		"twitter_linked": user.TwitterID != "",
	})
}

type linkTwitterRequest struct {
	TwitterID string `json:"twitter_id" binding:"required"`
}

// LinkTwitter handles POST /api/users/me/twitter.
func (h *UserHandler) LinkTwitter(c *gin.Context) {
	var req linkTwitterRequest
	if err := c.ShouldBindJSON(&req); err != nil || !twitterIDPattern.MatchString(req.TwitterID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "numeric twitter_id required"})
		return
	}
	user, ok := h.current(c)
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(user).
		Update("twitter_id", req.TwitterID).Error; err != nil {
		respondError(c, h.logger, err, "db error")
		return
	}
	user.TwitterID = req.TwitterID
	c.JSON(http.StatusOK, gin.H{"user": user})
}
