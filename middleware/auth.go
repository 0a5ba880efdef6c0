package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/config"
)

const IdentityKey = "identity"

// SessionPrefix namespaces live sessions in the cache.
const SessionPrefix = "session:"

// Identity is the caller resolved by Auth.
type Identity struct {
	UserID string
	Token  string
}

type identityCtxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFrom returns the identity attached by Auth, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// Auth resolves the caller from a Bearer JWT or the session cookie and checks
// the session is still live in the cache. It only reads state.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := credential(ctx, sec.CookieName)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionPrefix+tokenStr)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		id := Identity{UserID: claims.UserID, Token: tokenStr}
		ctx.Set(IdentityKey, id)
		ctx.Request = ctx.Request.WithContext(WithIdentity(ctx.Request.Context(), id))
		ctx.Next()
	}
}

func credential(ctx *gin.Context, cookieName string) string {
	if header := ctx.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookieName == "" {
		return ""
	}
	v, err := ctx.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return v
}

// CurrentIdentity retrieves the authenticated identity from the Gin context.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// GetUserID retrieves the authenticated user ID, or "".
func GetUserID(c *gin.Context) string {
	id, _ := CurrentIdentity(c)
	return id.UserID
}
