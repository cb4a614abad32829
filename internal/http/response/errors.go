package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

type mapping struct {
	err    error
	status int
}

// Порядок важен: конфликт конкурентного обновления приходит вместе с ErrInvalidTransition.
var statusTable = []mapping{
	{lifecycle.ErrNotFound, http.StatusNotFound},
	{subscription.ErrForbidden, http.StatusForbidden},
	{lifecycle.ErrAlreadyCancelled, http.StatusConflict},
	{lifecycle.ErrInvalidTransition, http.StatusConflict},
	{lifecycle.ErrConflict, http.StatusConflict},
	{lifecycle.ErrDuplicateSubscription, http.StatusConflict},
	{storage.ErrPlanExists, http.StatusConflict},
	{storage.ErrPlanInUse, http.StatusConflict},
	{lifecycle.ErrNotAnUpgrade, http.StatusUnprocessableEntity},
	{lifecycle.ErrNotADowngrade, http.StatusUnprocessableEntity},
	{lifecycle.ErrUsageExceedsTarget, http.StatusUnprocessableEntity},
	{lifecycle.ErrPlanUnavailable, http.StatusUnprocessableEntity},
	{lifecycle.ErrInvalidArgument, http.StatusUnprocessableEntity},
	{lifecycle.ErrDependencyUnavailable, http.StatusServiceUnavailable},
}

// StatusFor сопоставляет ошибку сервиса HTTP-статусу и публичному сообщению.
// Неизвестные ошибки дают 500 без деталей.
func StatusFor(err error) (int, string) {
	for _, m := range statusTable {
		if errors.Is(err, m.err) {
			return m.status, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// Fail пишет ответ с ошибкой сервиса. Ошибки клиента логируются как предупреждения.
func Fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	status, public := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, sl.Err(err))
	} else {
		log.Warn(msg, sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, Error(public))
}
