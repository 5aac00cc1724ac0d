package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
)

// RedisCache stores entries in Redis with native key expiry.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedis connects to the configured Redis server.
func NewRedis(cfg config.CacheConfig) *RedisCache {
	return &RedisCache{rdb: redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 10 * time.Second,
	})}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(apperr.ErrTransient, err, "redis get")
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.ErrTransient, err, "redis set")
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.ErrTransient, err, "redis ping")
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
