package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	redisClient "github.com/trigg3rX/triggerx-mirror-sync/pkg/client/redis"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

// Store keeps one Mirrored record per destination. Load returns an empty
// record for a destination that was never synced.
type Store interface {
	Load(ctx context.Context, destination string) (*Mirrored, error)
	Save(ctx context.Context, m *Mirrored) error
}

func empty(destination string) *Mirrored {
	return &Mirrored{Destination: destination}
}

func decode(raw []byte, destination string) (*Mirrored, error) {
	var m Mirrored
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", destination, err)
	}
	m.Destination = destination
	return &m, nil
}

// FileStore writes <dir>/<destination>.json.
type FileStore struct {
	dir    string
	logger logging.Logger
}

func NewFileStore(dir string, logger logging.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) path(destination string) (string, error) {
	if destination == "" || strings.ContainsAny(destination, `/\`) || destination == "." || destination == ".." {
		return "", fmt.Errorf("invalid destination name %q", destination)
	}
	return filepath.Join(f.dir, destination+".json"), nil
}

func (f *FileStore) Load(_ context.Context, destination string) (*Mirrored, error) {
	path, err := f.path(destination)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty(destination), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return decode(raw, destination)
}

// Save replaces the file atomically through a rename.
func (f *FileStore) Save(_ context.Context, m *Mirrored) error {
	path, err := f.path(m.Destination)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, m.Destination+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	f.logger.Debug("Saved snapshot", "destination", m.Destination, "trigger_id", m.LastTriggerID)
	return nil
}

// Key is the Redis key holding a destination's snapshot.
func Key(destination string) string {
	return "syncer:" + destination + ":snapshot"
}

// RedisStore shares snapshots between syncer replicas.
type RedisStore struct {
	client redisClient.RedisClientInterface
	logger logging.Logger
}

func NewRedisStore(client redisClient.RedisClientInterface, logger logging.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func (r *RedisStore) Load(ctx context.Context, destination string) (*Mirrored, error) {
	raw, found, err := r.client.Get(ctx, Key(destination))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if !found {
		return empty(destination), nil
	}
	return decode([]byte(raw), destination)
}

func (r *RedisStore) Save(ctx context.Context, m *Mirrored) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, Key(m.Destination), raw, 0); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	r.logger.Debug("Saved snapshot", "destination", m.Destination, "trigger_id", m.LastTriggerID)
	return nil
}
