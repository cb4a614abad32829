// Package subscriptionmanager собирает HTTP API сервиса подписок.
package subscriptionmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/subscription-manager/internal/app/infra"
	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/migrations"
	plansservice "github.com/magabrotheeeer/subscription-manager/internal/services/plans"
	subservice "github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

type App struct {
	server *http.Server
	cfg    *config.Config
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	broker *infra.Broker
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
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

	collector := metrics.New()
	engine, planCatalog := infra.NewEngine(cfg, infra.EngineDeps{
		DB:       db,
		Cache:    cacheRedis,
		Broker:   broker,
		Recorder: collector,
	}, logger)

	deps := Dependencies{
		Subscriptions: subservice.NewSubscriptionService(engine, db),
		Plans:         plansservice.NewService(db, planCatalog, logger),
		Tokens:        jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.Issuer, cfg.TokenTTL),
		Metrics:       collector,
		Checks: map[string]health.Checker{
			"postgres": db.DB.PingContext,
			"redis":    cacheRedis.Ping,
			"rabbitmq": func(context.Context) error {
				if broker.Conn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, deps)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		cfg:    cfg,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		broker: broker,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}

	a.broker.Close(a.logger)
	if cerr := a.cache.Close(); cerr != nil {
		a.logger.Error("failed to close redis", sl.Err(cerr))
	}
	if cerr := a.db.Close(); cerr != nil {
		a.logger.Error("failed to close database", sl.Err(cerr))
	}
	return err
}
