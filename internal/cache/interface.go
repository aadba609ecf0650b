// Package cache mirrors the teacher's CacheInterface abstraction over
// go-redis/v8, reused here for the consent-status read path only.
package cache

import (
	"context"
	"time"
)

type CacheInterface interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

var _ CacheInterface = (*RedisClient)(nil)
