package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/cache"
	"github.com/a-marczewski/huntdedup/internal/config"
	"github.com/a-marczewski/huntdedup/internal/logging"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/storage"
	"github.com/a-marczewski/huntdedup/internal/telemetry"
	"github.com/a-marczewski/huntdedup/internal/version"
)

// NewApp loads the project configuration and initializes the application.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig initializes the logger, database and engine for cfg.
func NewAppWithConfig(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logFile := cfg.LogFile
	if logFile != "" && !filepath.IsAbs(logFile) && cfg.HuntDedupDir != "" {
		logFile = filepath.Join(cfg.HuntDedupDir, logFile)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, logFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.NewDB(cfg)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	metrics, err := telemetry.Init(context.Background(), telemetry.Options{
		ServiceVersion: version.Version,
		Endpoint:       cfg.MetricsEndpoint,
		SetGlobal:      true,
		Logger:         logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	detector := similarity.NewDetector(
		similarity.WithWeights(cfg.SimilarityWeights),
		similarity.WithLogger(logger),
	)

	var ttl time.Duration
	if cfg.CacheEnabled {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}

	// Create context for managing the lifetime of running commands
	ctx, cancel := context.WithCancel(context.Background())
	ctx = config.WithConfig(ctx, cfg)
	ctx = logging.ContextWithLogger(ctx, logger)

	return &App{
		Core: CoreModule{
			Config:  cfg,
			Logger:  logger,
			DB:      db,
			Metrics: metrics,
		},
		Engine: EngineModule{
			Detector: detector,
			Cache:    cache.New(db.GetConnection(), detector, ttl, logger),
			History:  storage.NewAttemptStore(db),
		},
		Ctx:    ctx,
		Cancel: cancel,
	}, nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	if a.Core.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Core.Metrics.Shutdown(ctx); err != nil {
			a.Core.Logger.Warn("Failed to flush metrics", zap.Error(err))
		}
		cancel()
	}

	if a.Core.DB != nil {
		if err := a.Core.DB.Close(); err != nil {
			a.Core.Logger.Error("Failed to close database connection", zap.Error(err))
		} else {
			a.Core.Logger.Debug("Database connection closed.")
		}
	}
	if a.Core.Logger != nil {
		if err := a.Core.Logger.Sync(); err != nil {
			// Syncing a terminal stderr fails harmlessly on most platforms.
			if !strings.Contains(err.Error(), "sync /dev/stderr: invalid argument") &&
				!strings.Contains(err.Error(), "sync <file descriptor>: bad file descriptor") &&
				!strings.Contains(err.Error(), "sync /dev/stderr: inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns a new context with the application's logger.
func (a *App) ContextWithLogger(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, a.Core.Logger)
}

// LoggerFromContext retrieves the logger from the given context, or returns the default app logger.
func (a *App) LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := logging.LoggerFromContext(ctx); ok {
		return logger
	}
	return a.Core.Logger
}
