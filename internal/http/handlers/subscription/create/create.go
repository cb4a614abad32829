// Package create реализует HTTP-обработчик оформления подписки.
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
	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// Handler управляет HTTP-запросами на создание новых подписок.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики создания подписки.
type Service interface {
	Create(ctx context.Context, actor subscription.Actor, req models.DummySubscription) (*lifecycle.Result, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Создает подписку текущего пользователя на план. План с пробным периодом начинается с trial.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummySubscription true "План и параметры подписки"
// @Success 201 {object} response.Response "Подписка создана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Подписка на план уже есть"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или план недоступен"
// @Router /subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := request.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.DummySubscription
	if !request.Decode(w, r, log, h.validate, &req, false) {
		return
	}

	res, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		response.Fail(w, r, log, "failed to create subscription", err)
		return
	}

	log.Info("subscription created", slog.String("subscription_id", res.Subscription.ID.String()))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}
