package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckchart/duckchart/internal/api"
	"github.com/duckchart/duckchart/internal/api/uistatic"
	"github.com/duckchart/duckchart/internal/assistant"
	"github.com/duckchart/duckchart/internal/auth"
	"github.com/duckchart/duckchart/internal/config"
	"github.com/duckchart/duckchart/internal/maintenance"
	"github.com/duckchart/duckchart/internal/observability"
	duckdbengine "github.com/duckchart/duckchart/internal/query/duckdb"
	"github.com/duckchart/duckchart/internal/render"
	"github.com/duckchart/duckchart/internal/session"
	sessionmemory "github.com/duckchart/duckchart/internal/session/memory"
	sessionpostgres "github.com/duckchart/duckchart/internal/session/postgres"
	"github.com/duckchart/duckchart/internal/storage"
	storagememory "github.com/duckchart/duckchart/internal/storage/memory"
	s3store "github.com/duckchart/duckchart/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("duckchart-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objectStore, err := openObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	maintenanceService := &maintenance.Service{
		ObjectStore: objectStore,
		Config: maintenance.Config{
			SessionTTL:        cfg.Sessions.TTL,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
			BatchSize:         cfg.Maintenance.BatchSize,
		},
		Logger: logger,
	}

	var (
		sessions       session.Store
		sessionsHealth api.ReadinessCheck
	)
	switch cfg.Sessions.Backend {
	case config.BackendPostgres:
		db, err := sessionpostgres.Open(ctx, sessionpostgres.DBConfig{
			DSN:             cfg.Sessions.DSN,
			MaxOpenConns:    cfg.Sessions.MaxOpenConns,
			MaxIdleConns:    cfg.Sessions.MaxIdleConns,
			ConnMaxIdleTime: cfg.Sessions.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Sessions.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open session db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store := sessionpostgres.NewStore(db)
		sessions = store
		sessionsHealth = store.HealthCheck
	default:
		store := sessionmemory.New(cfg.Sessions.TTL)
		// Expired in-memory sessions take their stored dataset with them.
		store.OnExpire(func(ctx context.Context, state session.State) {
			deleted, err := maintenanceService.PurgeSession(ctx, state)
			if err != nil {
				logger.Warn("failed to purge expired session", slog.String("session_id", state.ID), slog.Any("error", err))
				return
			}
			logger.Debug("purged expired session", slog.String("session_id", state.ID), slog.Int("objects_deleted", deleted))
		})
		store.Start()
		defer store.Stop()
		sessions = store
	}
	maintenanceService.Sessions = sessions

	renderer := render.NewRenderer(
		duckdbengine.NewEngine(objectStore, cfg.Render.TempDir),
		cfg.Render.MaxPoints,
		cfg.Render.MaxBins,
	)
	assistantService := &assistant.Service{
		Sessions:    sessions,
		ObjectStore: objectStore,
		Renderer:    renderer,
		Config: assistant.Config{
			CategoryLimit: cfg.Ingest.CategoryLimit,
			RenderTimeout: cfg.Render.Timeout,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:      logger,
		Assistant:   assistantService,
		Maintenance: maintenanceService,
		UI:          uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckSessionStore(cfg),
			api.CheckObjectStoreConfig(cfg),
			sessionsHealth,
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("session_backend", cfg.Sessions.Backend),
			slog.String("object_store_backend", cfg.ObjectStore.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.ObjectStore.Backend {
	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 object store: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return storagememory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported object store backend %q", cfg.ObjectStore.Backend)
	}
}
