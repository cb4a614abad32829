// Package read реализует HTTP-обработчик чтения плана.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/request"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить план
// @Tags Plans
// @Produce  json
// @Param id path string true "ID плана"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "План не найден"
// @Router /plans/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.read"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := request.PathID(w, r, log)
	if !ok {
		return
	}
	plan, err := h.service.Get(r.Context(), id)
	if err != nil {
		response.Fail(w, r, log, "failed to read plan", err)
		return
	}
	render.JSON(w, r, response.OKWithData(plan))
}
