package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	redisClient "github.com/trigg3rX/triggerx-mirror-sync/pkg/client/redis"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

// Store persists one handler's State. Commit writes the whole value at once
// and fails with ErrConcurrentUpdate unless next is exactly one version ahead
// of what is stored.
type Store interface {
	// Load returns ErrNotInitialized when nothing was committed yet.
	Load(ctx context.Context) (*State, error)
	Commit(ctx context.Context, next *State) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, ErrNotInitialized
	}
	return m.state.Clone(), nil
}

func (m *MemoryStore) Commit(_ context.Context, next *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkVersion(m.state, next); err != nil {
		return err
	}
	m.state = next.Clone()
	return nil
}

func checkVersion(current, next *State) error {
	var have uint64
	if current != nil {
		have = current.Version
	}
	if current == nil && next.Version == 0 {
		return nil
	}
	if next.Version != have+1 {
		return fmt.Errorf("%w: stored version %d, commit version %d", ErrConcurrentUpdate, have, next.Version)
	}
	return nil
}

// StateKey is the Redis key holding a handler's state.
func StateKey(handler string) string {
	return "mirror:" + handler + ":state"
}

// RedisStore serializes the state as one JSON value. Commits run in a
// WATCH/MULTI transaction so mirror nodes sharing a Redis cannot interleave.
type RedisStore struct {
	client redisClient.RedisClientInterface
	key    string
	logger logging.Logger
}

func NewRedisStore(client redisClient.RedisClientInterface, handler string, logger logging.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    StateKey(handler),
		logger: logger.With("component", "mirror_store", "key", StateKey(handler)),
	}
}

func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	raw, found, err := r.client.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror state: %w", err)
	}
	if !found {
		return nil, ErrNotInitialized
	}
	return decodeState([]byte(raw))
}

func (r *RedisStore) Commit(ctx context.Context, next *State) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode mirror state: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current *State
		raw, err := tx.Get(ctx, r.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeState([]byte(raw)); err != nil {
				return err
			}
		}
		if err := checkVersion(current, next); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, payload, 0)
			return nil
		})
		return err
	}, r.key)

	if errors.Is(err, redisClient.ErrTxConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	if err != nil {
		return err
	}
	r.logger.Debug("Committed mirror state", "version", next.Version, "trigger_id", next.LastTriggerID)
	return nil
}

func decodeState(raw []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode mirror state: %w", err)
	}
	s.normalize()
	return &s, nil
}
