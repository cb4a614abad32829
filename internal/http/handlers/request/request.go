// Package request содержит общие шаги разбора HTTP-запроса: тело JSON,
// ID из пути, пагинацию и пользователя из контекста. При ошибке шаг сам
// пишет ответ и возвращает false.
package request

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Decode читает JSON в dst и проверяет его валидатором. Пустое тело
// допустимо, если allowEmpty.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, validate *validator.Validate, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			log.Warn("failed to decode request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request body"))
			return false
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Warn("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return false
		}
		log.Error("validator failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return false
	}
	return true
}

// PathID разбирает параметр {id} из пути.
func PathID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		log.Warn("failed to decode id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return uuid.Nil, false
	}
	return id, true
}

// Actor возвращает пользователя из контекста.
func Actor(w http.ResponseWriter, r *http.Request, log *slog.Logger) (subscription.Actor, bool) {
	actor, ok := middlewarectx.ActorFrom(r.Context())
	if !ok {
		log.Error("user not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return subscription.Actor{}, false
	}
	return actor, true
}

// Page читает limit и offset из query. Некорректные значения заменяются умолчаниями.
func Page(r *http.Request) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
