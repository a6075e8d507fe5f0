package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/scheduler"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/env"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	devMode bool

	metricsPort string

	// Source chain
	rpcURL                 string
	registryCoordinator    string
	operatorStateRetriever string
	serviceManager         string
	stakeRegistry          string

	signerKeys   []string
	destinations []syncer.Destination

	snapshotBackend string
	snapshotDir     string
	redisURL        string
	redisPassword   string

	blockInterval uint64
	pollInterval  time.Duration
	cronSchedule  string
	maxEventRange uint64
}

var cfg Config

// destinationsFile is the YAML shape of SYNC_DESTINATIONS_FILE.
type destinationsFile struct {
	Destinations []syncer.Destination `yaml:"destinations"`
}

// Init loads .env when present, reads the SYNC_* environment and the
// destinations file it points at.
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
	c := Config{
		devMode:                env.GetEnvBool("DEV_MODE", false),
		metricsPort:            env.GetEnvString("SYNC_METRICS_PORT", "9021"),
		rpcURL:                 env.GetEnvString("SYNC_RPC_URL", ""),
		registryCoordinator:    env.GetEnvString("SYNC_REGISTRY_COORDINATOR", ""),
		operatorStateRetriever: env.GetEnvString("SYNC_OPERATOR_STATE_RETRIEVER", ""),
		serviceManager:         env.GetEnvString("SYNC_SERVICE_MANAGER", ""),
		stakeRegistry:          env.GetEnvString("SYNC_STAKE_REGISTRY", ""),
		signerKeys:             env.GetEnvList("SYNC_SIGNER_KEYS"),
		snapshotBackend:        strings.ToLower(env.GetEnvString("SYNC_SNAPSHOT_BACKEND", BackendFile)),
		snapshotDir:            env.GetEnvString("SYNC_SNAPSHOT_DIR", "data/snapshots"),
		redisURL:               env.GetEnvString("REDIS_URL", ""),
		redisPassword:          env.GetEnvString("REDIS_PASSWORD", ""),
		blockInterval:          env.GetEnvUint64("SYNC_BLOCK_INTERVAL", 10),
		pollInterval:           env.GetEnvDuration("SYNC_POLL_INTERVAL", 12*time.Second),
		cronSchedule:           env.GetEnvString("SYNC_CRON", ""),
		maxEventRange:          env.GetEnvUint64("SYNC_MAX_EVENT_RANGE", 5000),
	}
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	dests, err := LoadDestinations(env.GetEnvString("SYNC_DESTINATIONS_FILE", "destinations.yaml"))
	if err != nil {
		return Config{}, err
	}
	c.destinations = dests
	return c, nil
}

func (c Config) validate() error {
	if !env.IsValidRPCURL(c.rpcURL) {
		return fmt.Errorf("invalid SYNC_RPC_URL: %q", c.rpcURL)
	}
	if !env.IsValidEthAddress(c.registryCoordinator) {
		return fmt.Errorf("invalid SYNC_REGISTRY_COORDINATOR: %q", c.registryCoordinator)
	}
	if !env.IsValidEthAddress(c.operatorStateRetriever) {
		return fmt.Errorf("invalid SYNC_OPERATOR_STATE_RETRIEVER: %q", c.operatorStateRetriever)
	}
	if c.serviceManager != "" && !env.IsValidEthAddress(c.serviceManager) {
		return fmt.Errorf("invalid SYNC_SERVICE_MANAGER: %q", c.serviceManager)
	}
	if c.stakeRegistry != "" && !env.IsValidEthAddress(c.stakeRegistry) {
		return fmt.Errorf("invalid SYNC_STAKE_REGISTRY: %q", c.stakeRegistry)
	}
	if len(c.signerKeys) == 0 {
		return errors.New("SYNC_SIGNER_KEYS is required")
	}
	for i, k := range c.signerKeys {
		if !env.IsValidPrivateKey(k) {
			return fmt.Errorf("SYNC_SIGNER_KEYS entry %d is not a hex private key", i)
		}
	}
	if !env.IsValidPort(c.metricsPort) {
		return fmt.Errorf("invalid SYNC_METRICS_PORT: %s", c.metricsPort)
	}
	switch c.snapshotBackend {
	case BackendFile:
		if env.IsEmpty(c.snapshotDir) {
			return errors.New("SYNC_SNAPSHOT_DIR is required for the file snapshot backend")
		}
	case BackendRedis:
		if env.IsEmpty(c.redisURL) {
			return errors.New("REDIS_URL is required for the redis snapshot backend")
		}
	default:
		return fmt.Errorf("invalid SYNC_SNAPSHOT_BACKEND: %s", c.snapshotBackend)
	}
	if c.maxEventRange == 0 {
		return errors.New("SYNC_MAX_EVENT_RANGE must be positive")
	}
	return c.schedule().Validate()
}

func (c Config) schedule() scheduler.Config {
	return scheduler.Config{
		BlockInterval: c.blockInterval,
		PollInterval:  c.pollInterval,
		Cron:          c.cronSchedule,
	}
}

// LoadDestinations reads and validates the destinations YAML file.
func LoadDestinations(path string) ([]syncer.Destination, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read destinations file: %w", err)
	}
	var f destinationsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse destinations file %s: %w", path, err)
	}
	if len(f.Destinations) == 0 {
		return nil, fmt.Errorf("destinations file %s lists no destinations", path)
	}
	seen := map[string]bool{}
	for _, d := range f.Destinations {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("destination %s listed twice", d.Name)
		}
		seen[d.Name] = true
	}
	return f.Destinations, nil
}

// Basic getters
func IsDevMode() bool {
	return cfg.devMode
}

func GetMetricsPort() string {
	return cfg.metricsPort
}

// Source chain getters
func GetRPCURL() string {
	return cfg.rpcURL
}

func GetContractAddresses() chainio.Addresses {
	addrs := chainio.Addresses{
		RegistryCoordinator:    common.HexToAddress(cfg.registryCoordinator),
		OperatorStateRetriever: common.HexToAddress(cfg.operatorStateRetriever),
	}
	if cfg.serviceManager != "" {
		addrs.ServiceManager = common.HexToAddress(cfg.serviceManager)
	}
	if cfg.stakeRegistry != "" {
		addrs.StakeRegistry = common.HexToAddress(cfg.stakeRegistry)
	}
	return addrs
}

func GetSignerKeys() []string {
	return cfg.signerKeys
}

func GetDestinations() []syncer.Destination {
	return cfg.destinations
}

// Storage getters
func GetSnapshotBackend() string {
	return cfg.snapshotBackend
}

func GetSnapshotDir() string {
	return cfg.snapshotDir
}

func GetRedisURL() string {
	return cfg.redisURL
}

func GetRedisPassword() string {
	return cfg.redisPassword
}

// Scheduling getters
func GetScheduleConfig() scheduler.Config {
	return cfg.schedule()
}

func GetMaxEventRange() uint64 {
	return cfg.maxEventRange
}

// GetSyncerConfig returns the effective configuration for startup logging.
// Signer keys are never included.
func GetSyncerConfig() map[string]interface{} {
	names := make([]string, len(cfg.destinations))
	for i, d := range cfg.destinations {
		names[i] = fmt.Sprintf("%s(%s)", d.Name, d.Kind)
	}
	return map[string]interface{}{
		"dev_mode":         cfg.devMode,
		"metrics_port":     cfg.metricsPort,
		"rpc_url":          cfg.rpcURL,
		"registry":         cfg.registryCoordinator,
		"signers":          len(cfg.signerKeys),
		"destinations":     names,
		"snapshot_backend": cfg.snapshotBackend,
		"block_interval":   cfg.blockInterval,
		"poll_interval":    cfg.pollInterval.String(),
		"cron":             cfg.cronSchedule,
	}
}
