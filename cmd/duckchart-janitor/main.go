package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckchart/duckchart/internal/config"
	"github.com/duckchart/duckchart/internal/maintenance"
	"github.com/duckchart/duckchart/internal/observability"
	sessionpostgres "github.com/duckchart/duckchart/internal/session/postgres"
	s3store "github.com/duckchart/duckchart/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("duckchart-janitor")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	// In-memory backends live inside the API process, which expires its own
	// sessions; a separate janitor only makes sense for shared stores.
	if cfg.Sessions.Backend != config.BackendPostgres || cfg.ObjectStore.Backend != config.BackendS3 {
		logger.Error("janitor requires the postgres session backend and the s3 object store",
			slog.String("session_backend", cfg.Sessions.Backend),
			slog.String("object_store_backend", cfg.ObjectStore.Backend),
		)
		os.Exit(1)
	}

	db, err := sessionpostgres.Open(context.Background(), sessionpostgres.DBConfig{
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

	store, err := s3store.New(context.Background(), s3store.Config{
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
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := &maintenance.Service{
		Sessions:    sessionpostgres.NewStore(db),
		ObjectStore: store,
		Config: maintenance.Config{
			SessionTTL:        cfg.Sessions.TTL,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
			BatchSize:         cfg.Maintenance.BatchSize,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("janitor worker started",
		slog.Duration("session_ttl", cfg.Sessions.TTL),
		slog.Duration("retention_interval", cfg.Maintenance.RetentionInterval),
	)
	if err := svc.Run(ctx); err != nil {
		logger.Error("janitor worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("janitor worker stopped")
}
