package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/config"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/metrics"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/scheduler"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	redisClient "github.com/trigg3rX/triggerx-mirror-sync/pkg/client/redis"
	pkghttp "github.com/trigg3rX/triggerx-mirror-sync/pkg/http"
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
		ProcessName:   logging.SyncerProcess,
		IsDevelopment: config.IsDevMode(),
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Close()
	}()

	logger.Info("Starting syncer service...", "config", config.GetSyncerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := chainio.BuildAvsReader(ctx, config.GetRPCURL(), config.GetContractAddresses(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to source chain", "error", err)
	}

	signer, err := verifier.NewSignerFromHex(config.GetSignerKeys()...)
	if err != nil {
		logger.Fatal("Failed to load signer keys", "error", err)
	}
	logger.Info("Loaded signer", "signing_keys", len(signer.Addresses()))

	store, closeStore, err := setupSnapshotStore(logger)
	if err != nil {
		logger.Fatal("Failed to initialize snapshot store", "error", err)
	}
	defer closeStore()

	httpClient, err := pkghttp.NewClient(pkghttp.DefaultConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create HTTP client", "error", err)
	}
	defer httpClient.Close()

	reader := syncer.NewReader(source, nil, logger)
	var targets []syncer.Target
	for _, dest := range config.GetDestinations() {
		targets = append(targets, syncer.Target{
			Detector: syncer.NewDetector(dest, reader, store, logger),
			Client:   syncer.NewDestinationClient(dest, httpClient, logger),
		})
	}

	orchestrator, err := syncer.New(syncer.Config{MaxEventRange: config.GetMaxEventRange()}, reader, signer, targets, logger)
	if err != nil {
		logger.Fatal("Failed to create syncer", "error", err)
	}

	sched, err := scheduler.New(config.GetScheduleConfig(), source, orchestrator.RunCycle, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", "error", err)
	}

	metrics.StartMetricsCollection(ctx)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", "error", err)
	}

	var wg sync.WaitGroup
	serverErrors := make(chan error, 1)
	httpServer := setupHTTPServer(orchestrator, sched, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting status server...", "port", config.GetMetricsPort())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("HTTP server error: %v", err)
		}
	}()

	logger.Infof("Syncer is ready with %d destinations", len(targets))

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
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	cancel()
	sched.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Syncer stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
	}
}

func setupSnapshotStore(logger logging.Logger) (snapshot.Store, func(), error) {
	if config.GetSnapshotBackend() != config.BackendRedis {
		store, err := snapshot.NewFileStore(config.GetSnapshotDir(), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
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
	return snapshot.NewRedisStore(client, logger), closeFn, nil
}

// setupHTTPServer serves /health, /metrics and a manual sync trigger.
func setupHTTPServer(orchestrator *syncer.Syncer, sched *scheduler.Scheduler, logger logging.Logger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := orchestrator.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"destinations": orchestrator.Destinations(),
			"last_cycle":   status,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/sync", func(c *gin.Context) {
		ran := sched.Trigger(c.Request.Context(), scheduler.TriggerManual)
		if !ran {
			c.JSON(http.StatusConflict, gin.H{"error": "sync already running"})
			return
		}
		logger.Info("Manual sync finished")
		c.JSON(http.StatusOK, gin.H{"last_cycle": orchestrator.Status()})
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", config.GetMetricsPort()),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}
