// Package scheduler содержит приложение планировщика переходов по сроку.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/subscription-manager/internal/app/infra"
	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/subscription-manager/internal/services/scheduler"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	cache            *cache.Cache
	broker           *infra.Broker
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = infra.WaitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	broker, err := infra.OpenBroker(cfg.RabbitMQ, 0)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, err
	}

	engine, _ := infra.NewEngine(cfg, infra.EngineDeps{
		DB:     db,
		Cache:  cacheRedis,
		Broker: broker,
	}, logger)

	return &App{
		schedulerService: schedulerservice.NewSchedulerService(db, engine, cfg.Interval, cfg.BatchSize, logger),
		db:               db,
		cache:            cacheRedis,
		broker:           broker,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	a.broker.Close(a.logger)
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	return nil
}
