package feed

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// goRedis adapts *redis.Client to RedisClient.
type goRedis struct {
	c *redis.Client
}

// NewRedisClient connects to Redis and returns a RedisClient backed by
// go-redis. It pings the server once before returning.
func NewRedisClient(ctx context.Context, addr, password string, db int) (RedisClient, func() error, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, nil, err
	}
	return goRedis{c: c}, c.Close, nil
}

func (g goRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.c.HSet(ctx, key, values...).Err()
}

func (g goRedis) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}
