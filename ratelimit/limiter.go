// Package ratelimit bounds how many requests a key may make per window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long a rejected caller must wait. Zero when allowed.
	RetryAfter time.Duration
	// ResetAfter is how long until the key's full budget is available again.
	ResetAfter time.Duration
}

// Limiter consumes one unit of budget for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
