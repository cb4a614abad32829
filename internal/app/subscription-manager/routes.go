package subscriptionmanager

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/analytics/summary"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/health"
	plancreate "github.com/magabrotheeeer/subscription-manager/internal/http/handlers/plan/create"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/plan/deactivate"
	planlist "github.com/magabrotheeeer/subscription-manager/internal/http/handlers/plan/list"
	planread "github.com/magabrotheeeer/subscription-manager/internal/http/handlers/plan/read"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/plan/rename"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/billing"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/create"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/history"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/read"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/transition"
	"github.com/magabrotheeeer/subscription-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	plansservice "github.com/magabrotheeeer/subscription-manager/internal/services/plans"
	subservice "github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// Dependencies содержит всё, что нужно маршрутам.
type Dependencies struct {
	Subscriptions  *subservice.SubscriptionService
	Plans          *plansservice.Service
	Tokens         middlewarectx.TokenParser
	Metrics        *metrics.Collector
	Checks         map[string]health.Checker
	RateLimitRPS   float64
	RateLimitBurst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps Dependencies) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		deps.Metrics.Middleware,
	)

	limiter := middlewarectx.NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst)
	subs := deps.Subscriptions

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.Tokens, logger))
			r.Use(limiter.Middleware(logger))

			r.Get("/plans", planlist.New(logger, deps.Plans).ServeHTTP)
			r.Get("/plans/{id}", planread.New(logger, deps.Plans).ServeHTTP)

			r.Post("/subscriptions", create.New(logger, subs).ServeHTTP)
			r.Get("/subscriptions", list.New(logger, subs).ServeHTTP)
			r.Get("/subscriptions/{id}", read.New(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/upgrade", transition.NewUpgrade(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/downgrade", transition.NewDowngrade(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/cancel", transition.NewCancel(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/pause", transition.NewPause(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/resume", transition.NewResume(logger, subs).ServeHTTP)
			r.Post("/subscriptions/{id}/renew", transition.NewRenew(logger, subs).ServeHTTP)
			r.Get("/subscriptions/{id}/history", history.New(logger, subs).ServeHTTP)
			r.Get("/subscriptions/{id}/billing", billing.New(logger, subs).ServeHTTP)

			// Администрирование
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireAdmin(logger))
				r.Post("/plans", plancreate.New(logger, deps.Plans).ServeHTTP)
				r.Patch("/plans/{id}", rename.New(logger, deps.Plans).ServeHTTP)
				r.Delete("/plans/{id}", deactivate.New(logger, deps.Plans).ServeHTTP)
				r.Get("/analytics/summary", summary.New(logger, subs).ServeHTTP)
			})
		})
	})

	r.Method(http.MethodGet, "/health", health.New(logger, deps.Checks))
	r.Handle("/metrics", deps.Metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
