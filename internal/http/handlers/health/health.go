// Package health реализует проверку готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
)

// Checker проверяет одну зависимость.
type Checker func(ctx context.Context) error

type Handler struct {
	log    *slog.Logger
	checks map[string]Checker
}

// New создаёт Handler с именованными проверками зависимостей.
func New(log *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{
		log:    log,
		checks: checks,
	}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("dependency check failed", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			report[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}

	render.Status(r, status)
	if status != http.StatusOK {
		render.JSON(w, r, response.Response{Status: response.StatusError, Data: report})
		return
	}
	render.JSON(w, r, response.OKWithData(report))
}
