package redis

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisClientInterface is the subset of Client the mirror and syncer stores use.
type RedisClientInterface interface {
	CheckConnection(ctx context.Context) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error
	Close() error
}

var _ RedisClientInterface = (*Client)(nil)
