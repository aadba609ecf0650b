package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(redisURL string, db int) (*RedisClient, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.DB = db
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.GetLogger().Info("redis connection established")
	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Close() error {
	if r.client != nil {
		err := r.client.Close()
		logger.GetLogger().Info("redis connection closed")
		return err
	}
	return nil
}

func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheMiss("redis")
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get from cache: %w", err)
	}

	metrics.RecordCacheHit("redis")
	return json.Unmarshal([]byte(val), dest)
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func ConsentStatusKey(email string) string {
	return fmt.Sprintf("gdpr:consent:status:%s", email)
}

var ErrCacheMiss = fmt.Errorf("cache miss")
