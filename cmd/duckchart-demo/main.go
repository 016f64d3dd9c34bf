package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckchart/duckchart/internal/demo/producer"
)

func main() {
	cfg, err := producer.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := producer.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("owner", cfg.Owner),
		slog.Int("rows", cfg.Rows),
		slog.Int("files", cfg.Files),
		slog.Int("questions", len(cfg.Questions)),
		slog.Int("rounds", cfg.Rounds),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo stopped")
}
