// Package summary реализует HTTP-обработчик сводки по подпискам.
package summary

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/request"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Summary(ctx context.Context, actor subscription.Actor) (*models.Summary, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сводка по подпискам
// @Description Количество подписок по статусам, MRR и сумма выставленных счетов.
// @Tags Analytics
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Нужна роль администратора"
// @Router /analytics/summary [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analytics.summary"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := request.Actor(w, r, log)
	if !ok {
		return
	}
	sum, err := h.service.Summary(r.Context(), actor)
	if err != nil {
		response.Fail(w, r, log, "failed to build summary", err)
		return
	}
	render.JSON(w, r, response.OKWithData(sum))
}
