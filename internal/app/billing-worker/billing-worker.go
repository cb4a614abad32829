// Package billingworker содержит приложение, которое превращает запросы
// биллинга из RabbitMQ в записи billing_records.
package billingworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/subscription-manager/internal/app/infra"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/billing"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

// App представляет приложение обработчика биллинга.
type App struct {
	worker *billing.Worker
	db     *repository.Storage
	broker *infra.Broker
	cfg    config.RabbitMQ
	logger *slog.Logger
}

// New создает приложение обработчика биллинга.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = infra.WaitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	broker, err := infra.OpenBroker(cfg.RabbitMQ, cfg.Concurrency)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		worker: billing.NewWorker(db, logger),
		db:     db,
		broker: broker,
		cfg:    cfg.RabbitMQ,
		logger: logger,
	}, nil
}

// Run потребляет очередь биллинга до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := a.worker.Run(ctx, a.broker.Ch, a.cfg.Queue, a.cfg.Concurrency)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	a.logger.Info("shutting down billing worker")
	a.broker.Close(a.logger)
	if cerr := a.db.Close(); cerr != nil {
		a.logger.Error("failed to close database", sl.Err(cerr))
	}
	return err
}
