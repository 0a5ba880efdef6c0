package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/config"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const noncePrefix = "nonce:"

// AuthHandler handles wallet sign-in and session endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, logger: logger}
}

// Nonce handles GET /api/auth/nonce?address=0x...
// The returned message must be signed verbatim with personal_sign.
func (h *AuthHandler) Nonce(c *gin.Context) {
	addr, err := wallet.NormalizeAddress(c.Query("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	nonce := uuid.NewString()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, noncePrefix+addr, nonce, h.sec.NonceTTL); err != nil {
		respondError(c, h.logger, err, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nonce":   nonce,
		"message": wallet.SignInMessage(addr, nonce),
	})
}

type signInRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Referrer  string `json:"referrer" binding:"omitempty,max=64"`
}

// SignIn handles POST /api/auth/signin.
// Creates the user on first sign-in, recording the referral if one is named.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and signature are required"})
		return
	}
	addr, err := wallet.NormalizeAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	nonce, err := h.cache.GetDel(ctx, noncePrefix+addr)
	if cache.IsNotFound(err) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "nonce expired, request a new one"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "internal error")
		return
	}
	if err := wallet.VerifySignature(addr, req.Signature, []byte(wallet.SignInMessage(addr, nonce))); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	banned, err := h.isBanned(ctx, "wallet_address = ?", addr)
	if err != nil {
		respondError(c, h.logger, err, "internal error")
		return
	}
	if banned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account banned"})
		return
	}

	user, created, err := h.findOrCreateUser(ctx, addr, req.Referrer)
	if err != nil {
		respondError(c, h.logger, err, "sign-in failed")
		return
	}
	if banned, err = h.isBanned(ctx, "user_id = ?", user.ID); err != nil {
		respondError(c, h.logger, err, "internal error")
		return
	} else if banned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account banned"})
		return
	}

	token, err := h.startSession(ctx, c, user.ID)
	if err != nil {
		respondError(c, h.logger, err, "token error")
		return
	}

	// Best-effort.
	now := time.Now().UTC()
	_ = h.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user":    user,
		"created": created,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	id, ok := mw.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionPrefix+id.Token)
	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	id, ok := mw.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionPrefix+id.Token)

	newToken, err := h.startSession(ctx, c, id.UserID)
	if err != nil {
		respondError(c, h.logger, err, "token error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": newToken})
}

func (h *AuthHandler) startSession(ctx context.Context, c *gin.Context, userID string) (string, error) {
	token, err := mw.GenerateToken(userID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	if err := h.cache.Set(ctx, mw.SessionPrefix+token, userID, h.sec.JWTTTLH); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if h.sec.CookieName != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.sec.CookieName, token, int(h.sec.JWTTTLH.Seconds()), "/", "", c.Request.TLS != nil, true)
	}
	return token, nil
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.sec.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sec.CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

func (h *AuthHandler) isBanned(ctx context.Context, where string, arg any) (bool, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&model.BannedUser{}).Where(where, arg).Count(&n).Error
	return n > 0, err
}

// usernameFor derives the default username from the whole wallet address,
// so it is as unique as the wallet itself.
func usernameFor(addr string) string {
	return "user_" + strings.TrimPrefix(addr, "0x")
}

func (h *AuthHandler) findOrCreateUser(ctx context.Context, addr, referrer string) (*model.User, bool, error) {
	var user model.User
	err := h.db.WithContext(ctx).Where("wallet_address = ?", addr).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user = model.User{WalletAddress: addr, Username: usernameFor(addr)}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if referrer == "" {
			return nil
		}
		var ref model.User
		err := tx.Where("username = ?", referrer).First(&ref).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Info("unknown referrer ignored", zap.String("referrer", referrer))
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Create(&model.ReferredUser{
			UserID:    ref.ID,
			NewUserID: user.ID,
			Status:    model.ReferralInactive,
			SignedUp:  true,
			Username:  user.Username,
		}).Error
	})
	if err != nil {
		// A concurrent first sign-in for the same wallet won the insert.
		if isUniqueViolation(err) {
			var existing model.User
			if lookupErr := h.db.WithContext(ctx).Where("wallet_address = ?", addr).First(&existing).Error; lookupErr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID), zap.Bool("referred", referrer != ""))
	return &user, true, nil
}
