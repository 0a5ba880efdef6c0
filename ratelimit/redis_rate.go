package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/go-redis/redis_rate/v10"
	goredis "github.com/redis/go-redis/v9"
)

// RedisRate is the multi-process counterpart of Bucket: GCRA state kept in
// Redis, smoothing throughput to rps with the given burst.
type RedisRate struct {
	lim    *redis_rate.Limiter
	limit  redis_rate.Limit
	prefix string
}

// NewRedisRate rounds rps up to a whole number of requests per second.
func NewRedisRate(rdb *goredis.Client, prefix string, rps float64, burst int) *RedisRate {
	perSec := int(math.Ceil(rps))
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = perSec
	}
	return &RedisRate{
		lim:    redis_rate.NewLimiter(rdb),
		limit:  redis_rate.Limit{Rate: perSec, Burst: burst, Period: time.Second},
		prefix: prefix,
	}
}

func (r *RedisRate) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := r.lim.Allow(ctx, r.prefix+key, r.limit)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Allowed:    res.Allowed > 0,
		Limit:      r.limit.Burst,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
	}
	if !d.Allowed {
		d.RetryAfter = res.RetryAfter
	}
	return d, nil
}
