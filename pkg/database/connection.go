package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
)

// Sessioner is the part of *gocql.Session the connection uses.
type Sessioner interface {
	Query(string, ...interface{}) *gocql.Query
	Close()
}

// Execer runs statements. Connection implements it; tests fake it.
type Execer interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	Iter(ctx context.Context, stmt string, values ...interface{}) *gocql.Iter
}

type Connection struct {
	session     Sessioner
	config      *Config
	retryConfig *retry.Config
	logger      logging.Logger
}

func NewConnection(config *Config, logger logging.Logger) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if err := ensureKeyspace(config); err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Timeout = config.Timeout
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: config.Retries}
	cluster.ConnectTimeout = config.ConnectWait
	cluster.Consistency = gocql.Quorum

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := InitSchema(session); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logger.Info("Connected to Cassandra", "hosts", strings.Join(config.Hosts, ","), "keyspace", config.Keyspace)
	return NewConnectionWithSession(session, config, logger), nil
}

// NewConnectionWithSession wraps an existing session.
func NewConnectionWithSession(session Sessioner, config *Config, logger logging.Logger) *Connection {
	rc := retry.DefaultConfig()
	rc.MaxRetries = 3
	rc.ShouldRetry = func(err error, _ int) bool { return isRetryableError(err) }
	return &Connection{
		session:     session,
		config:      config,
		retryConfig: rc,
		logger:      logger,
	}
}

// ensureKeyspace creates the keyspace with a keyspace-less session.
func ensureKeyspace(config *Config) error {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Timeout = config.Timeout
	cluster.ConnectTimeout = config.ConnectWait
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to cluster: %w", err)
	}
	defer session.Close()
	return session.Query(keyspaceStatement(config.Keyspace)).Exec()
}

func (c *Connection) Session() Sessioner {
	return c.session
}

// Exec runs stmt, retrying timeouts and unavailable errors.
func (c *Connection) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return retry.Do(ctx, func() error {
		return c.session.Query(stmt, values...).WithContext(ctx).Exec()
	}, c.retryConfig, c.logger)
}

func (c *Connection) Iter(ctx context.Context, stmt string, values ...interface{}) *gocql.Iter {
	return c.session.Query(stmt, values...).WithContext(ctx).Iter()
}

func (c *Connection) Close() {
	if c.session != nil {
		c.session.Close()
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var (
		writeTimeout *gocql.RequestErrWriteTimeout
		readTimeout  *gocql.RequestErrReadTimeout
		unavailable  *gocql.RequestErrUnavailable
	)
	if errors.As(err, &writeTimeout) || errors.As(err, &readTimeout) || errors.As(err, &unavailable) {
		return true
	}
	if errors.Is(err, gocql.ErrNoConnections) || errors.Is(err, gocql.ErrTimeoutNoResponse) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset by peer", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
