package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/medicamenta/internal/api"
	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/config"
	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/lock"
	"github.com/gmsas95/medicamenta/internal/metrics"
	"github.com/gmsas95/medicamenta/internal/store"
	"github.com/gmsas95/medicamenta/internal/sweep"
	"github.com/gmsas95/medicamenta/internal/tracing"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Level    zap.AtomicLevel
	Store    store.Backend
	Handler  *commands.Handler
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Sweep    *sweep.Runner
	Version  string

	closers         []func() error
	shutdownTracing func(context.Context) error
}

// NewLogger builds the process logger. The returned level can be changed at runtime.
func NewLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level.SetLevel(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return logger, zcfg.Level, nil
}

// New wires storage, locking, metrics, tracing and the command handler. Close releases
// everything it opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Level:   level,
		Version: version,
	}

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	locker, err := newLocker(cfg.Lock, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	environment := "production"
	if cfg.Log.Development {
		environment = "development"
	}
	a.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing, environment, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	fc := forecast.NewService(
		forecast.WithThresholdDays(cfg.Forecast.RestockDays),
		forecast.WithTargetDays(cfg.Forecast.TargetDays),
	)
	a.Handler = commands.NewHandler(st, fc, logger,
		commands.WithLocker(locker),
		commands.WithMetrics(a.Metrics),
		commands.WithLowStockThreshold(cfg.Forecast.LowStockThreshold),
	)

	if cfg.Sweep.Enabled {
		a.Sweep = sweep.NewRunner(cfg.Sweep.Spec, st, a.Handler, a.Metrics, logger)
	}
	return a, nil
}

func newLocker(cfg config.LockConfig, logger *zap.Logger) (lock.Locker, error) {
	if cfg.Backend == "redis" {
		l, err := lock.NewRedis(cfg.RedisURL, cfg.TTL, cfg.Wait, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect lock backend: %w", err)
		}
		logger.Info("Using redis medication locks")
		return l, nil
	}
	return lock.NewLocal(cfg.Wait), nil
}

// StoreState reports the store circuit breaker state, or "none" without a breaker.
func (a *App) StoreState() string {
	if b, ok := a.Store.(*store.BreakerRepository); ok {
		return b.State().String()
	}
	return "none"
}

// NewServer builds the HTTP API over the app's handler.
func (a *App) NewServer() *api.Server {
	return api.New(a.Config, a.Handler, a.Metrics, a.Registry, a.Logger,
		api.WithVersion(a.Version),
		api.WithStoreState(a.StoreState),
	)
}

// Reload applies the settings that can change without a restart and reports the rest.
func (a *App) Reload(cfg *config.Config) {
	if cfg.Log.Level != a.Config.Log.Level {
		if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			a.Level.SetLevel(lvl)
			a.Logger.Info("Log level changed", zap.String("level", cfg.Log.Level))
		} else {
			a.Logger.Warn("Ignoring invalid log level", zap.String("level", cfg.Log.Level))
		}
	}
	if cfg.Server != a.Config.Server || cfg.Storage != a.Config.Storage || cfg.Lock != a.Config.Lock ||
		cfg.Forecast != a.Config.Forecast || cfg.Sweep != a.Config.Sweep {
		a.Logger.Warn("Config changed; restart to apply server, storage, lock, forecast or sweep settings")
	}
	a.Config.Log.Level = cfg.Log.Level
}

// RunServer serves HTTP and runs the sweep until ctx is cancelled, then shuts down.
func (a *App) RunServer(ctx context.Context, configPath, dataDir string) error {
	server := a.NewServer()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if a.Sweep != nil {
		if err := a.Sweep.Start(); err != nil {
			a.Logger.Error("Failed to start restock sweep", zap.Error(err))
		}
	}

	if err := config.Watch(configPath, dataDir, a.Reload, func(err error) {
		a.Logger.Warn("Ignoring invalid config change", zap.Error(err))
	}); err != nil {
		a.Logger.Warn("Config watch disabled", zap.Error(err))
	}

	a.Logger.Info("Server started",
		zap.String("version", a.Version),
		zap.String("addr", a.Config.ListenAddr()),
		zap.String("storage", a.Config.Storage.Backend),
		zap.String("lock", a.Config.Lock.Backend))

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("Shutting down...")
	case runErr = <-errCh:
		a.Logger.Error("Server error", zap.Error(runErr))
	}

	if a.Sweep != nil {
		a.Sweep.Stop()
	}
	if err := server.Shutdown(); err != nil {
		a.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return runErr
}

// Close flushes traces and closes the lock backend and store.
func (a *App) Close() error {
	var errs []error
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.shutdownTracing(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
