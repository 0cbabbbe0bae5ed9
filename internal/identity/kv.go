package identity

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

var ErrMiss = errors.New("cache miss")

// KV holds short-lived markers such as revoked token ids.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// MemoryKV is a process-local KV for single-instance deployments and tests.
type MemoryKV struct {
	c *cache.Cache
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{c: cache.New(cache.NoExpiration, time.Minute)}
}

func (k *MemoryKV) Get(_ context.Context, key string) (string, error) {
	v, ok := k.c.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return v.(string), nil
}

// Set stores value; a ttl of zero or less never expires.
func (k *MemoryKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	k.c.Set(key, value, ttl)
	return nil
}
