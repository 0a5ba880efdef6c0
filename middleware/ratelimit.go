package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/ratelimit"
	"go.uber.org/zap"
)

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	// Message is returned in the 429 body.
	Message string
	// IPv6Subnet groups IPv6 callers; see ClientKey.
	IPv6Subnet int
	Logger     *zap.Logger
}

// RateLimit gates requests per normalized client IP. Every response carries
// the RateLimit-Limit/Remaining/Reset headers; callers over budget get 429
// with Retry-After. Limiter errors let the request through.
func RateLimit(l ratelimit.Limiter, opts RateLimitOptions) gin.HandlerFunc {
	msg := opts.Message
	if msg == "" {
		msg = "rate limit exceeded"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := ClientKey(c, opts.IPv6Subnet)
		d, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.ResetAfter)))

		if !d.Allowed {
			retry := ceilSeconds(d.RetryAfter)
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       msg,
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
