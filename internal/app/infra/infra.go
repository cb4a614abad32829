// Package infra поднимает инфраструктуру, общую для бинарников:
// PostgreSQL, Redis, RabbitMQ и движок жизненного цикла поверх них.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/services/billing"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// WaitForDB ждёт, пока в базе появятся таблицы сервиса.
func WaitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for i := 0; i < dbReadyAttempts; i++ {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// Broker — соединение и канал RabbitMQ с объявленной топологией биллинга.
type Broker struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

// OpenBroker подключается к RabbitMQ и объявляет exchange и очередь биллинга.
func OpenBroker(cfg config.RabbitMQ, prefetch int) (*Broker, error) {
	conn, err := rabbitmq.Connect(cfg.URL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.BillingQueues(cfg.Queue, cfg.RoutingKey), prefetch)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	return &Broker{Conn: conn, Ch: ch}, nil
}

// Close закрывает канал и соединение.
func (b *Broker) Close(log *slog.Logger) {
	if b == nil {
		return
	}
	if err := b.Ch.Close(); err != nil {
		log.Error("failed to close channel", sl.Err(err))
	}
	if err := b.Conn.Close(); err != nil {
		log.Error("failed to close connection", sl.Err(err))
	}
}

// EngineDeps содержит готовые зависимости движка.
type EngineDeps struct {
	DB       *repository.Storage
	Cache    *cache.Cache
	Broker   *Broker
	Recorder lifecycle.Recorder
}

// NewEngine собирает движок: каталог через кеш Redis, подписки, журнал и
// потребление из PostgreSQL, запросы биллинга в RabbitMQ.
func NewEngine(cfg *config.Config, deps EngineDeps, log *slog.Logger) (*lifecycle.Engine, *cache.PlanCatalog) {
	plans := cache.NewPlanCatalog(deps.DB, deps.Cache, cfg.PlanCacheTTL, log)
	publisher := billing.NewPublisher(deps.Broker.Ch, cfg.Exchange, cfg.RoutingKey)

	var opts []lifecycle.Option
	if deps.Recorder != nil {
		opts = append(opts, lifecycle.WithRecorder(deps.Recorder))
	}
	engine := lifecycle.New(plans, deps.DB, deps.DB, publisher, deps.DB, log, opts...)
	return engine, plans
}
