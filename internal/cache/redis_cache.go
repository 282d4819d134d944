package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisQueryCache backs the query cache with a shared Redis instance.
// Useful when several terminals share one kiosk host; selected at startup
// when REDIS_ADDR is configured, otherwise the memory cache is used.
type RedisQueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQueryCache(addr string, password string, db int, ttl time.Duration) *RedisQueryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisQueryCache{client: client, ttl: ttl}
}

func (c *RedisQueryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisQueryCache) Close() error {
	return c.client.Close()
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisQueryCache) Put(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

func (c *RedisQueryCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *RedisQueryCache) InvalidateAll(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}
