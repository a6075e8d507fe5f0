package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/api"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/config"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/metrics"
	redisClient "github.com/trigg3rX/triggerx-mirror-sync/pkg/client/redis"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/database"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Initialize configuration
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	// Initialize logger
	logger, err := logging.NewZapLogger(logging.LoggerConfig{
		ProcessName:   logging.MirrorProcess,
		IsDevelopment: config.IsDevMode(),
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Close()
	}()

	logger.Info("Starting mirror service...", "config", config.GetMirrorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := setupStore(logger)
	if err != nil {
		logger.Fatal("Failed to initialize state store", "error", err)
	}
	defer closeStore()

	if path := config.GetGenesisFile(); path != "" {
		genesis, err := mirror.LoadGenesis(path)
		if err != nil {
			logger.Fatal("Failed to load genesis", "error", err)
		}
		if _, err := mirror.Bootstrap(ctx, store, genesis, logger); err != nil {
			logger.Fatal("Failed to bootstrap mirror state", "error", err)
		}
	}

	history, closeHistory, err := setupHistory(logger)
	if err != nil {
		logger.Fatal("Failed to initialize submission history", "error", err)
	}
	defer closeHistory()

	mode, err := mirror.ParseApplyMode(config.GetApplyMode())
	if err != nil {
		logger.Fatal("Invalid apply mode", "error", err)
	}
	handler, err := mirror.NewHandler(mirror.HandlerConfig{
		Name: config.GetHandlerName(),
		Kind: config.GetPayloadKind(),
		Mode: mode,
	}, store, verifier.NewECDSAVerifier(), history, logger)
	if err != nil {
		logger.Fatal("Failed to create mirror handler", "error", err)
	}

	metrics.StartMetricsCollection(ctx)

	server := api.NewServer(api.Config{Port: config.GetAPIPort(), MaxBodyBytes: config.GetMaxBodyBytes()}, api.Dependencies{
		Logger: logger,
		Mirror: handler,
	})

	var wg sync.WaitGroup
	serverErrors := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			serverErrors <- err
		}
	}()

	logger.Infof("Mirror %s is ready on port %s", config.GetHandlerName(), config.GetAPIPort())

	// Handle graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	logger.Info("Initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Mirror stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
	}
}

func setupStore(logger logging.Logger) (mirror.Store, func(), error) {
	if config.GetStateBackend() != config.BackendRedis {
		logger.Warn("Using in-memory state store; state is lost on restart")
		return mirror.NewMemoryStore(), func() {}, nil
	}

	client, err := redisClient.NewRedisClient(logger, redisClient.RedisConfig{
		URL:                config.GetRedisURL(),
		Password:           config.GetRedisPassword(),
		ConnectionSettings: redisClient.DefaultConnectionSettings(),
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close Redis client", "error", err)
		}
	}
	return mirror.NewRedisStore(client, config.GetHandlerName(), logger), closeFn, nil
}

func setupHistory(logger logging.Logger) (mirror.History, func(), error) {
	if config.GetHistoryBackend() != config.BackendCassandra {
		return mirror.NewMemoryHistory(config.GetHistoryCapacity()), func() {}, nil
	}

	dbConfig := database.NewConfig(config.GetDatabaseHost(), config.GetDatabaseHostPort()).
		WithKeyspace(config.GetDatabaseKeyspace())
	conn, err := database.NewConnection(dbConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	return mirror.NewCassandraHistory(conn, logger), conn.Close, nil
}
