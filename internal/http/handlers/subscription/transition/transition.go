// Package transition реализует HTTP-обработчики операций жизненного цикла:
// upgrade, downgrade, cancel, pause, resume и renew.
package transition

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/request"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// Service описывает операции над подпиской.
type Service interface {
	Upgrade(ctx context.Context, actor subscription.Actor, id uuid.UUID, req models.DummyUpgrade) (*lifecycle.Result, error)
	Downgrade(ctx context.Context, actor subscription.Actor, id uuid.UUID, req models.DummyDowngrade) (*lifecycle.Result, error)
	Cancel(ctx context.Context, actor subscription.Actor, id uuid.UUID, req models.DummyCancel) (*lifecycle.Result, error)
	Pause(ctx context.Context, actor subscription.Actor, id uuid.UUID, req models.DummyPause) (*lifecycle.Result, error)
	Resume(ctx context.Context, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error)
	Renew(ctx context.Context, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error)
}

// errResponded — ответ уже записан при разборе тела.
var errResponded = errors.New("response already written")

type call func(h *Handler, w http.ResponseWriter, r *http.Request, log *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error)

// Handler выполняет одну операцию над подпиской из пути /subscriptions/{id}/<action>.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
	action   models.Action
	call     call
}

func newHandler(log *slog.Logger, service Service, action models.Action, c call) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		action:   action,
		call:     c,
	}
}

// NewUpgrade godoc
// @Summary Повысить тариф
// @Description Переводит подписку на более дорогой план сразу, с доплатой за остаток периода.
// @Tags Lifecycle
// @Accept  json
// @Produce  json
// @Param id path string true "ID подписки"
// @Param request body models.DummyUpgrade true "Целевой план"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Недопустимый переход"
// @Failure 422 {object} response.ErrorResponse "План не является повышением"
// @Router /subscriptions/{id}/upgrade [post]
func NewUpgrade(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionUpgrade,
		func(h *Handler, w http.ResponseWriter, r *http.Request, log *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			var req models.DummyUpgrade
			if !request.Decode(w, r, log, h.validate, &req, false) {
				return nil, errResponded
			}
			return h.service.Upgrade(r.Context(), actor, id, req)
		})
}

// NewDowngrade godoc
// @Summary Понизить тариф
// @Description По умолчанию изменение вступает в силу в следующую дату списания.
// @Tags Lifecycle
// @Accept  json
// @Produce  json
// @Param id path string true "ID подписки"
// @Param request body models.DummyDowngrade true "Целевой план"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Недопустимый переход"
// @Failure 422 {object} response.ErrorResponse "Потребление превышает квоту плана"
// @Failure 503 {object} response.ErrorResponse "Потребление недоступно"
// @Router /subscriptions/{id}/downgrade [post]
func NewDowngrade(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionDowngrade,
		func(h *Handler, w http.ResponseWriter, r *http.Request, log *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			var req models.DummyDowngrade
			if !request.Decode(w, r, log, h.validate, &req, false) {
				return nil, errResponded
			}
			return h.service.Downgrade(r.Context(), actor, id, req)
		})
}

// NewCancel godoc
// @Summary Отменить подписку
// @Tags Lifecycle
// @Accept  json
// @Produce  json
// @Param id path string true "ID подписки"
// @Param request body models.DummyCancel false "Причина и немедленность отмены"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Подписка уже отменена"
// @Router /subscriptions/{id}/cancel [post]
func NewCancel(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionCancel,
		func(h *Handler, w http.ResponseWriter, r *http.Request, log *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			var req models.DummyCancel
			if !request.Decode(w, r, log, h.validate, &req, true) {
				return nil, errResponded
			}
			return h.service.Cancel(r.Context(), actor, id, req)
		})
}

// NewPause godoc
// @Summary Приостановить подписку
// @Tags Lifecycle
// @Accept  json
// @Produce  json
// @Param id path string true "ID подписки"
// @Param request body models.DummyPause true "Длительность паузы"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Недопустимый переход"
// @Router /subscriptions/{id}/pause [post]
func NewPause(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionPause,
		func(h *Handler, w http.ResponseWriter, r *http.Request, log *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			var req models.DummyPause
			if !request.Decode(w, r, log, h.validate, &req, false) {
				return nil, errResponded
			}
			return h.service.Pause(r.Context(), actor, id, req)
		})
}

// NewResume godoc
// @Summary Возобновить подписку
// @Description Новый период отсчитывается от момента возобновления.
// @Tags Lifecycle
// @Produce  json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Подписка не приостановлена"
// @Router /subscriptions/{id}/resume [post]
func NewResume(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionResume,
		func(h *Handler, _ http.ResponseWriter, r *http.Request, _ *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			return h.service.Resume(r.Context(), actor, id)
		})
}

// NewRenew godoc
// @Summary Выставить счёт за текущий период
// @Tags Lifecycle
// @Produce  json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Подписка не активна"
// @Router /subscriptions/{id}/renew [post]
func NewRenew(log *slog.Logger, service Service) *Handler {
	return newHandler(log, service, models.ActionRenew,
		func(h *Handler, _ http.ResponseWriter, r *http.Request, _ *slog.Logger, actor subscription.Actor, id uuid.UUID) (*lifecycle.Result, error) {
			return h.service.Renew(r.Context(), actor, id)
		})
}

// ServeHTTP разбирает пользователя и ID, выполняет операцию и отдаёт итог.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.transition"
	log := h.log.With(
		slog.String("op", op),
		slog.String("action", string(h.action)),
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

	res, err := h.call(h, w, r, log, actor, id)
	if errors.Is(err, errResponded) {
		return
	}
	if err != nil {
		response.Fail(w, r, log, "subscription operation failed", err)
		return
	}

	log.Info("subscription operation applied",
		slog.String("subscription_id", id.String()),
		slog.String("status", string(res.Subscription.Status)))
	render.JSON(w, r, response.OKWithData(res))
}
