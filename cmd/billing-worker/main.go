package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	billingworker "github.com/magabrotheeeer/subscription-manager/internal/app/billing-worker"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env)

	logger.Info("starting billing-worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := billingworker.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("billing-worker stopped gracefully")
}
