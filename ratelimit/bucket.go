package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Bucket keeps one token bucket per key in process memory. It smooths
// throughput rather than counting a window, which suits the global
// per-IP request rate.
type Bucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

// NewBucket allows r requests per second with the given burst.
func NewBucket(r rate.Limit, burst int) *Bucket {
	if burst <= 0 {
		burst = 1
	}
	return &Bucket{
		limit:   r,
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (l *Bucket) WithClock(now func() time.Time) *Bucket {
	l.now = now
	return l
}

func (l *Bucket) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	d := Decision{Limit: l.burst}
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		d.RetryAfter = l.refillTime(float64(l.burst))
		return d, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
		d.ResetAfter = l.resetAfter(b.lim, now)
		return d, nil
	}

	d.Allowed = true
	d.Remaining = int(math.Max(0, math.Floor(b.lim.TokensAt(now))))
	d.ResetAfter = l.resetAfter(b.lim, now)
	return d, nil
}

// Sweep drops buckets that are full again; a fresh bucket behaves the same.
// It returns the number of keys removed.
func (l *Bucket) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, b := range l.buckets {
		if b.lim.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Bucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Bucket) resetAfter(lim *rate.Limiter, now time.Time) time.Duration {
	return l.refillTime(float64(l.burst) - lim.TokensAt(now))
}

func (l *Bucket) refillTime(tokens float64) time.Duration {
	if tokens <= 0 || l.limit <= 0 || l.limit == rate.Inf {
		return 0
	}
	return time.Duration(tokens / float64(l.limit) * float64(time.Second))
}
