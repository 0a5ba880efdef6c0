package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds Redis connection settings. Prefix namespaces every key so
// several deployments can share one database.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache stores sessions, nonces and provider lookups in Redis.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
}

// NewCache dials Redis and fails fast when PING does not answer within 5s.
func NewCache(cfg Config) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisCache{rdb: rdb, prefix: cfg.Prefix}, nil
}

// Client exposes the underlying connection for components that share it,
// such as the distributed rate limiter.
func (r *RedisCache) Client() *goredis.Client { return r.rdb }

func (r *RedisCache) Close() error { return r.rdb.Close() }

func (r *RedisCache) key(k string) string { return r.prefix + k }

func notFound(v string, err error) (string, error) {
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return notFound(r.rdb.Get(ctx, r.key(key)).Result())
}

// GetDel reads and removes key in one round trip (Redis >= 6.2).
func (r *RedisCache) GetDel(ctx context.Context, key string) (string, error) {
	return notFound(r.rdb.GetDel(ctx, r.key(key)).Result())
}

// Set stores value; ttl <= 0 keeps it until deleted.
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.key(key), value, ttl).Result()
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.rdb.Del(ctx, full...).Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}
