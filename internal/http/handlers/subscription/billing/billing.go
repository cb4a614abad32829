// Package billing реализует HTTP-обработчик записей биллинга подписки.
package billing

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
	Billing(ctx context.Context, actor subscription.Actor, id uuid.UUID) ([]*models.BillingRecord, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Записи биллинга подписки
// @Tags Subscriptions
// @Produce  json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /subscriptions/{id}/billing [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.billing"
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

	records, err := h.service.Billing(r.Context(), actor, id)
	if err != nil {
		response.Fail(w, r, log, "failed to read billing records", err)
		return
	}
	render.JSON(w, r, response.OKWithData(records))
}
