// Package list реализует HTTP-обработчик списка планов.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	List(ctx context.Context, includeInactive bool) ([]*models.Plan, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Каталог планов
// @Description Активные планы. Администратор может запросить и деактивированные.
// @Tags Plans
// @Produce  json
// @Param all query bool false "Включить деактивированные (только администратор)"
// @Success 200 {object} response.Response
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.ActorFrom(r.Context())
	includeInactive := actor.Admin && r.URL.Query().Get("all") == "true"

	plans, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		response.Fail(w, r, log, "failed to list plans", err)
		return
	}
	render.JSON(w, r, response.OKWithData(plans))
}
