// Package session реализует выпуск и разбор JWT-токенов пользовательской сессии.
//
// Claims расширяет стандартные claims JWT идентичностью пользователя:
// идентификатором, email и отображаемым именем.
//
// Maker определяет интерфейс для создания и проверки сессионных токенов,
// MakerImpl — конкретная реализация с секретным ключом и временем жизни.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims описывает идентичность пользователя, хранящуюся в сессионном JWT.
type Claims struct {
	UserID               string `json:"user_id"` // Идентификатор подписчика
	Email                string `json:"email"`   // Email подписчика
	Name                 string `json:"name"`    // Отображаемое имя
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}

// Maker описывает интерфейс для генерации и парсинга сессионных токенов.
type Maker interface {
	// GenerateToken создает токен для пользователя с указанной идентичностью.
	GenerateToken(userID, email, name string) (string, error)
	// ParseToken возвращает *Claims с идентичностью пользователя.
	ParseToken(tokenStr string) (*Claims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
