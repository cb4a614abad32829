package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject возвращается для токена без идентификатора пользователя.
var ErrNoSubject = errors.New("token has no subject")

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
type CustomClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из sub.
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// IsAdmin сообщает, что токен выдан администратору.
func (c *CustomClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// GenerateToken подписывает токен для пользователя userID с ролью role.
// Используется в тестах и локальной разработке вместо провайдера.
func (j *MakerImpl) GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken проверяет подпись, срок действия и издателя токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoSubject)
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return claims, nil
}
