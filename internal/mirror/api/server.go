package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/api/handlers"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

// Server exposes one mirror handler over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

type Config struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxHeaderBytes int
	// MaxBodyBytes caps envelope submissions.
	MaxBodyBytes int64
}

const DefaultMaxBodyBytes = 4 << 20

type Dependencies struct {
	Logger logging.Logger
	Mirror handlers.Mirror
}

func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = 1 << 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	router := gin.New()
	srv := &Server{
		router: router,
		logger: deps.Logger,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%s", cfg.Port),
			Handler:        router,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
	}

	srv.router.Use(gin.Recovery())
	srv.router.Use(LoggerMiddleware(srv.logger))
	srv.setupRoutes(cfg, deps)

	return srv
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting mirror API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mirror API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	h := handlers.NewMirrorHandler(deps.Logger, deps.Mirror)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/envelopes", BodyLimitMiddleware(cfg.MaxBodyBytes), h.SubmitEnvelope)
		v1.GET("/state", h.GetState)
		v1.GET("/operators/:address", h.GetOperator)
		v1.GET("/history", h.GetHistory)
	}

	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", handlers.Metrics())
}
