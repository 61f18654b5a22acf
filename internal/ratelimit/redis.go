package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter backs the limiter with a shared Redis instance so limits hold
// across service instances. Keys are bucketed by window start, giving fixed
// windows without a Lua script.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter wraps a go-redis client.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Incr bumps the key's count in the current window bucket.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := time.Now().Truncate(window).Unix()
	redisKey := fmt.Sprintf("%s:%s:%d", c.prefix, key, bucket)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// Expire a little after the window so clock skew cannot drop a live bucket.
	pipe.Expire(ctx, redisKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
