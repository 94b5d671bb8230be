package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabletalk/tabletalk/internal/demo/chatter"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := chatter.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	svc, err := chatter.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to build demo chatter", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("demo chatter started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("user_id", cfg.UserID),
	)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo chatter failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo chatter stopped")
}
