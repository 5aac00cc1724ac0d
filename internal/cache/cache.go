// Package cache holds the key-value cache used for summaries.
package cache

import (
	"context"
	"time"

	"github.com/skynetai/skynet/backend/internal/config"
)

// Cache is a byte cache with per-entry expiry. Get reports found=false on a
// miss or an expired entry.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// New picks Redis when an address is configured and the in-process cache
// otherwise.
func New(cfg config.CacheConfig) Cache {
	if cfg.RedisAddr == "" {
		return NewMemory()
	}
	return NewRedis(cfg)
}
