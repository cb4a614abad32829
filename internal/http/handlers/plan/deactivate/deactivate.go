// Package deactivate реализует HTTP-обработчик снятия плана с продажи.
package deactivate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/request"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Deactivate(ctx context.Context, id uuid.UUID) error
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Деактивировать план
// @Description План не удаляется физически. План с живыми подписками деактивировать нельзя.
// @Tags Plans
// @Produce  json
// @Param id path string true "ID плана"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "План не найден"
// @Failure 409 {object} response.ErrorResponse "У плана есть живые подписки"
// @Router /plans/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.deactivate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := request.PathID(w, r, log)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		response.Fail(w, r, log, "failed to deactivate plan", err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id":        id,
		"is_active": false,
	}))
}
