package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Local counts requests per key over a sliding window in process memory.
// A key may make at most max requests in any span of window; each accepted
// request frees its slot exactly window after it was made.
type Local struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewLocal allows max requests per window for each key.
func NewLocal(max int, window time.Duration) *Local {
	if max <= 0 {
		max = 1
	}
	return &Local{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to step across windows.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.now = now
	return l
}

func (l *Local) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.live(l.hits[key], now)
	d := Decision{Limit: l.max}
	if len(hits) >= l.max {
		l.hits[key] = hits
		d.RetryAfter = hits[0].Add(l.window).Sub(now)
		d.ResetAfter = d.RetryAfter
		return d, nil
	}

	hits = append(hits, now)
	l.hits[key] = hits
	d.Allowed = true
	d.Remaining = l.max - len(hits)
	d.ResetAfter = hits[0].Add(l.window).Sub(now)
	return d, nil
}

// live drops the hits that fell out of the window ending at now.
func (l *Local) live(hits []time.Time, now time.Time) []time.Time {
	cut := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cut) {
		i++
	}
	return hits[i:]
}

// Sweep drops keys with no request inside the current window and returns
// how many were removed.
func (l *Local) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, hits := range l.hits {
		if len(l.live(hits, now)) == 0 {
			delete(l.hits, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
