package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// slidingLog trims hits older than the window, then records one more if
// the key still has budget. Scores are unix milliseconds. It returns
// {allowed, hits in window, oldest hit}.
var slidingLog = goredis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {allowed, count, tonumber(oldest[2])}
`)

// Redis shares a sliding-window budget across processes. Each key is a
// sorted set of request timestamps.
type Redis struct {
	rdb    *goredis.Client
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis allows max requests per window for each key. prefix namespaces
// the keys so several limiters can share one Redis database.
func NewRedis(rdb *goredis.Client, prefix string, max int, window time.Duration) *Redis {
	if max <= 0 {
		max = 1
	}
	return &Redis{rdb: rdb, max: max, window: window, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source used to stamp requests.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now().UnixMilli()
	window := r.window.Milliseconds()

	res, err := slidingLog.Run(ctx, r.rdb, []string{r.prefix + key},
		now, window, r.max, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Limit: r.max, Allowed: res[0] == 1}
	d.ResetAfter = time.Duration(res[2]+window-now) * time.Millisecond
	if d.Allowed {
		d.Remaining = r.max - int(res[1])
	} else {
		d.RetryAfter = d.ResetAfter
	}
	return d, nil
}
