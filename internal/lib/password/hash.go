// Package password хеширует пароли подписчиков для хранения в базе.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher хеширует и проверяет пароли через bcrypt с заданной стоимостью.
type Hasher struct {
	cost int
}

// NewHasher создает Hasher. Стоимость вне допустимого диапазона bcrypt
// заменяется стоимостью по умолчанию, чтобы опечатка в конфигурации
// не ослабила хеширование.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash возвращает bcrypt-хеш пароля для сохранения.
func (h Hasher) Hash(plain string) (string, error) {
	const op = "password.Hash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Compare проверяет пароль против сохранённого хеша. Возвращает nil
// при совпадении. Стоимость читается из самого хеша, поэтому ранее
// выданные хеши остаются проверяемыми после смены настройки.
func (h Hasher) Compare(stored, plain string) error {
	const op = "password.Compare"
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
