// Package middlewarectx содержит HTTP middleware сервиса: проверку JWT,
// ограничение доступа администраторам и ограничение частоты запросов.
//
// JWTMiddleware проверяет токен провайдера идентификации в заголовке Authorization
// и кладёт в контекст идентификатор пользователя и роль.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserID — ключ для идентификатора пользователя в контексте
	UserID Key = "user_id"
	// Role — ключ для роли пользователя в контексте
	Role Key = "role"
)

// TokenParser проверяет JWT и возвращает его claims.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
//
// Если токен валиден, добавляет идентификатор пользователя и роль в контекст запроса,
// иначе возвращает ошибку с HTTP статусом 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), UserID, claims.UserID())
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin пропускает только запросы с ролью администратора.
func RequireAdmin(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok || !actor.Admin {
				log.Warn("admin role required",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("user_id", actor.UserID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFrom возвращает пользователя, положенного в контекст JWTMiddleware.
func ActorFrom(ctx context.Context) (subscription.Actor, bool) {
	userID, ok := ctx.Value(UserID).(string)
	if !ok || userID == "" {
		return subscription.Actor{}, false
	}
	role, _ := ctx.Value(Role).(string)
	return subscription.Actor{UserID: userID, Admin: role == jwt.RoleAdmin}, true
}
