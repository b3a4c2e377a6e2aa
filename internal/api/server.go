package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/config"
	"github.com/gmsas95/medicamenta/internal/metrics"
	"github.com/gmsas95/medicamenta/internal/security"
)

// Server exposes the command handler over HTTP
type Server struct {
	app        *fiber.App
	config     *config.Config
	handler    *commands.Handler
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	limiter    *ownerLimiter
	input      *security.InputValidator
	logger     *zap.Logger
	version    string
	storeState func() string
}

type Option func(*Server)

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithStoreState reports the store circuit breaker state on the health endpoint.
func WithStoreState(fn func() string) Option {
	return func(s *Server) { s.storeState = fn }
}

func New(cfg *config.Config, handler *commands.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		app:      app,
		config:   cfg,
		handler:  handler,
		metrics:  m,
		gatherer: gatherer,
		input:    security.NewInputValidator(),
		logger:   logger,
		version:  "dev",
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newOwnerLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := s.config.ListenAddr()
	s.logger.Info("HTTP API listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
