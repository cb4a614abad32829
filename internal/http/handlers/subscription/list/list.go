// Package list реализует HTTP-обработчик списка подписок пользователя.
package list

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

// Handler отдаёт подписки постранично.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение списка подписок.
type Service interface {
	List(ctx context.Context, actor subscription.Actor, limit, offset int) ([]*models.Subscription, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список подписок
// @Description Подписки текущего пользователя; администратор видит все.
// @Tags Subscriptions
// @Produce  json
// @Param limit query int false "Размер страницы" default(20)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /subscriptions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := request.Actor(w, r, log)
	if !ok {
		return
	}
	limit, offset := request.Page(r)

	subs, err := h.service.List(r.Context(), actor, limit, offset)
	if err != nil {
		response.Fail(w, r, log, "failed to list subscriptions", err)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscriptions": subs,
		"limit":         limit,
		"offset":        offset,
	}))
}
