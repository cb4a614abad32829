// Package history реализует HTTP-обработчик журнала переходов подписки.
package history

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
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	History(ctx context.Context, actor subscription.Actor, id uuid.UUID) ([]models.LifecycleLogEntry, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История подписки
// @Tags Subscriptions
// @Produce  json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /subscriptions/{id}/history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.history"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := request.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		response.Fail(w, r, log, "failed to read history", err)
		return
	}
	render.JSON(w, r, response.OKWithData(entries))
}
