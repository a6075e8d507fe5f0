package redis

import (
	"errors"
	"time"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
)

type ConnectionSettings struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// RedisConfig accepts any redis:// or rediss:// URL, including Upstash ones.
type RedisConfig struct {
	URL                string
	Password           string
	ConnectionSettings ConnectionSettings
	Retry              *retry.Config
}

func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// DefaultRetryConfig is tuned for short Redis round trips.
func DefaultRetryConfig() *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 3
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = 2 * time.Second
	return cfg
}

func (c RedisConfig) Validate() error {
	if c.URL == "" {
		return errors.New("redis URL is required")
	}
	if c.Retry != nil {
		return c.Retry.Validate()
	}
	return nil
}
