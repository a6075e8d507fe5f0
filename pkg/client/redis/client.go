package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
)

// ErrTxConflict is returned by Watch when a watched key changed before EXEC.
var ErrTxConflict = errors.New("redis transaction conflict")

// Client wraps go-redis with retries and logging.
type Client struct {
	redisClient *redis.Client
	config      RedisConfig
	retryConfig *retry.Config
	logger      logging.Logger
}

// NewRedisClient connects and pings before returning.
func NewRedisClient(logger logging.Logger, config RedisConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.Password != "" {
		opt.Password = config.Password
	}
	applyConnectionSettings(opt, config.ConnectionSettings)

	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	c := &Client{
		redisClient: redis.NewClient(opt),
		config:      config,
		retryConfig: retryConfig,
		logger:      logger,
	}
	if err := c.CheckConnection(context.Background()); err != nil {
		_ = c.redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", opt.Addr, "db", opt.DB)
	return c, nil
}

func applyConnectionSettings(opt *redis.Options, s ConnectionSettings) {
	if s.PoolSize > 0 {
		opt.PoolSize = s.PoolSize
	}
	if s.MinIdleConns > 0 {
		opt.MinIdleConns = s.MinIdleConns
	}
	if s.DialTimeout > 0 {
		opt.DialTimeout = s.DialTimeout
	}
	if s.ReadTimeout > 0 {
		opt.ReadTimeout = s.ReadTimeout
	}
	if s.WriteTimeout > 0 {
		opt.WriteTimeout = s.WriteTimeout
	}
	if s.PoolTimeout > 0 {
		opt.PoolTimeout = s.PoolTimeout
	}
}

func (c *Client) CheckConnection(ctx context.Context) error {
	return c.do(ctx, "ping", func() error {
		return c.redisClient.Ping(ctx).Err()
	})
}

// Get returns ("", false, nil) for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := c.do(ctx, "get", func() error {
		v, err := c.redisClient.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			value, found = "", false
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.do(ctx, "set", func() error {
		return c.redisClient.Set(ctx, key, value, expiration).Err()
	})
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.do(ctx, "del", func() error {
		return c.redisClient.Del(ctx, keys...).Err()
	})
}

// Watch runs fn inside an optimistic WATCH transaction on keys. It is not
// retried: a conflict surfaces as ErrTxConflict so the caller can re-read.
func (c *Client) Watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	err := c.redisClient.Watch(ctx, fn, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrTxConflict
	}
	return err
}

// Client exposes the underlying go-redis client for pipelines.
func (c *Client) Client() *redis.Client {
	return c.redisClient
}

func (c *Client) Close() error {
	return c.redisClient.Close()
}

func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, fn, c.retryConfig, c.logger)
	if err != nil {
		c.logger.Error("Redis operation failed", "op", op, "error", err)
	}
	return err
}
