// Package jwt проверяет JWT, выпущенные провайдером идентификации.
//
// Субъект токена (sub) — идентификатор пользователя, claim role задаёт роль.
package jwt

import (
	"time"
)

// Роли, которые понимает сервис.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	GenerateToken(userID, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на общем секретном ключе HS256.
type MakerImpl struct {
	secretKey string
	issuer    string
	tokenTTL  time.Duration
}

// NewJWTMaker создаёт MakerImpl. Пустой issuer отключает проверку iss.
func NewJWTMaker(secretKey, issuer string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		issuer:    issuer,
		tokenTTL:  ttl,
	}
}
