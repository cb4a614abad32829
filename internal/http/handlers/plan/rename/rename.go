// Package rename реализует HTTP-обработчик переименования плана.
// Условия плана после создания не меняются.
package rename

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/request"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

type Service interface {
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Plan, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Переименовать план
// @Tags Plans
// @Accept  json
// @Produce  json
// @Param id path string true "ID плана"
// @Param request body models.DummyRename true "Новое название"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "План не найден"
// @Failure 409 {object} response.ErrorResponse "Название занято"
// @Router /plans/{id} [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.rename"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := request.PathID(w, r, log)
	if !ok {
		return
	}
	var req models.DummyRename
	if !request.Decode(w, r, log, h.validate, &req, false) {
		return
	}

	plan, err := h.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		response.Fail(w, r, log, "failed to rename plan", err)
		return
	}
	render.JSON(w, r, response.OKWithData(plan))
}
