package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nexurateam/nexura-app-sub001/cache/local"
	cacheredis "github.com/nexurateam/nexura-app-sub001/cache/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Cache defines the string KV operations shared by the Redis and in-process stores.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// GetDel reads and removes key atomically; used for one-time values.
	GetDel(ctx context.Context, key string) (string, error)
	Close() error
}

// CacheConfig holds configuration for both Redis and LocalCache.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
	}
	return local.NewCache(local.Config{
		GCInterval: cfg.LocalGCInterval,
	})
}

// IsNotFound reports whether err signals a missing key from either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// RedisClient returns the shared Redis connection when c is Redis-backed.
func RedisClient(c Cache) (*goredis.Client, bool) {
	rc, ok := c.(*cacheredis.RedisCache)
	if !ok {
		return nil, false
	}
	return rc.Client(), true
}
