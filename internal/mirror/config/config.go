package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/env"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendCassandra = "cassandra"
)

type Config struct {
	devMode bool

	apiPort      string
	maxBodyBytes int64

	handlerName string
	payloadKind types.PayloadKind
	applyMode   string
	genesisFile string

	stateBackend  string
	redisURL      string
	redisPassword string

	historyBackend   string
	historyCapacity  int
	databaseHost     string
	databaseHostPort string
	databaseKeyspace string
}

var cfg Config

// Init loads .env when present and reads the MIRROR_* environment.
func Init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	loaded, err := load()
	if err != nil {
		return err
	}
	cfg = loaded

	if !cfg.devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

func load() (Config, error) {
	kind, err := types.ParsePayloadKind(env.GetEnvString("MIRROR_PAYLOAD_KIND", string(types.PayloadKindFull)))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MIRROR_PAYLOAD_KIND: %w", err)
	}

	c := Config{
		devMode:          env.GetEnvBool("DEV_MODE", false),
		apiPort:          env.GetEnvString("MIRROR_API_PORT", "9020"),
		maxBodyBytes:     int64(env.GetEnvInt("MIRROR_MAX_BODY_BYTES", 4<<20)),
		handlerName:      env.GetEnvString("MIRROR_HANDLER_NAME", ""),
		payloadKind:      kind,
		applyMode:        strings.ToLower(env.GetEnvString("MIRROR_APPLY_MODE", "replace")),
		genesisFile:      env.GetEnvString("MIRROR_GENESIS_FILE", ""),
		stateBackend:     strings.ToLower(env.GetEnvString("MIRROR_STATE_BACKEND", BackendMemory)),
		redisURL:         env.GetEnvString("REDIS_URL", ""),
		redisPassword:    env.GetEnvString("REDIS_PASSWORD", ""),
		historyBackend:   strings.ToLower(env.GetEnvString("MIRROR_HISTORY_BACKEND", BackendMemory)),
		historyCapacity:  env.GetEnvInt("MIRROR_HISTORY_CAPACITY", 1000),
		databaseHost:     env.GetEnvString("DATABASE_HOST", "localhost"),
		databaseHostPort: env.GetEnvString("DATABASE_HOST_PORT", "9042"),
		databaseKeyspace: env.GetEnvString("DATABASE_KEYSPACE", "triggerx_mirror"),
	}
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c Config) validate() error {
	if env.IsEmpty(c.handlerName) {
		return errors.New("MIRROR_HANDLER_NAME is required")
	}
	if strings.ContainsAny(c.handlerName, ": ") {
		return fmt.Errorf("MIRROR_HANDLER_NAME %q must not contain spaces or colons", c.handlerName)
	}
	if !env.IsValidPort(c.apiPort) {
		return fmt.Errorf("invalid MIRROR_API_PORT: %s", c.apiPort)
	}
	if c.maxBodyBytes < 1 {
		return fmt.Errorf("invalid MIRROR_MAX_BODY_BYTES: %d", c.maxBodyBytes)
	}
	if c.applyMode != "replace" && c.applyMode != "upsert" {
		return fmt.Errorf("invalid MIRROR_APPLY_MODE: %s", c.applyMode)
	}
	switch c.stateBackend {
	case BackendMemory:
	case BackendRedis:
		if env.IsEmpty(c.redisURL) {
			return errors.New("REDIS_URL is required for the redis state backend")
		}
	default:
		return fmt.Errorf("invalid MIRROR_STATE_BACKEND: %s", c.stateBackend)
	}
	switch c.historyBackend {
	case BackendMemory:
		if c.historyCapacity < 1 {
			return errors.New("MIRROR_HISTORY_CAPACITY must be at least 1")
		}
	case BackendCassandra:
		if !env.IsValidPort(c.databaseHostPort) {
			return fmt.Errorf("invalid DATABASE_HOST_PORT: %s", c.databaseHostPort)
		}
	default:
		return fmt.Errorf("invalid MIRROR_HISTORY_BACKEND: %s", c.historyBackend)
	}
	return nil
}

// Basic getters
func IsDevMode() bool {
	return cfg.devMode
}

func GetAPIPort() string {
	return cfg.apiPort
}

func GetMaxBodyBytes() int64 {
	return cfg.maxBodyBytes
}

// Handler getters
func GetHandlerName() string {
	return cfg.handlerName
}

func GetPayloadKind() types.PayloadKind {
	return cfg.payloadKind
}

func GetApplyMode() string {
	return cfg.applyMode
}

func GetGenesisFile() string {
	return cfg.genesisFile
}

// Storage getters
func GetStateBackend() string {
	return cfg.stateBackend
}

func GetRedisURL() string {
	return cfg.redisURL
}

func GetRedisPassword() string {
	return cfg.redisPassword
}

func GetHistoryBackend() string {
	return cfg.historyBackend
}

func GetHistoryCapacity() int {
	return cfg.historyCapacity
}

func GetDatabaseHost() string {
	return cfg.databaseHost
}

func GetDatabaseHostPort() string {
	return cfg.databaseHostPort
}

func GetDatabaseKeyspace() string {
	return cfg.databaseKeyspace
}

// GetMirrorConfig returns the effective configuration for startup logging.
func GetMirrorConfig() map[string]interface{} {
	return map[string]interface{}{
		"dev_mode":         cfg.devMode,
		"api_port":         cfg.apiPort,
		"max_body_bytes":   cfg.maxBodyBytes,
		"handler":          cfg.handlerName,
		"payload_kind":     string(cfg.payloadKind),
		"apply_mode":       cfg.applyMode,
		"genesis_file":     cfg.genesisFile,
		"state_backend":    cfg.stateBackend,
		"history_backend":  cfg.historyBackend,
		"history_capacity": cfg.historyCapacity,
	}
}
