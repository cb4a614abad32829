// Package create реализует HTTP-обработчик добавления плана в каталог.
package create

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

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
	Create(ctx context.Context, req models.DummyPlan) (*models.Plan, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать план
// @Tags Plans
// @Accept  json
// @Produce  json
// @Param request body models.DummyPlan true "Условия плана"
// @Success 201 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Нужна роль администратора"
// @Failure 409 {object} response.ErrorResponse "План с таким названием уже есть"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /plans [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPlan
	if !request.Decode(w, r, log, h.validate, &req, false) {
		return
	}

	plan, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.Fail(w, r, log, "failed to create plan", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(plan))
}
