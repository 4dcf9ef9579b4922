// Package middlewarectx содержит HTTP middleware ядра: проверку сессионного
// JWT, защиту административных маршрутов, лимитер допуска и глобальный
// троттлинг. Middleware прикрепляют идентичность вызывающего к контексту
// запроса и пишут отказы в журнал аудита.
package middlewarectx

import "context"

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserID — ключ идентификатора подписчика в контексте
	UserID Key = "user_id"
	// Email — ключ email подписчика в контексте
	Email Key = "email"
	// Name — ключ отображаемого имени в контексте
	Name Key = "name"
)

// Identity идентичность аутентифицированного вызывающего.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// WithIdentity кладет идентичность в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserID, id.UserID)
	ctx = context.WithValue(ctx, Email, id.Email)
	ctx = context.WithValue(ctx, Name, id.Name)
	return ctx
}

// IdentityFromContext достает идентичность из контекста.
// Второе значение false, если запрос не проходил сессионную проверку.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	userID, ok := ctx.Value(UserID).(string)
	if !ok || userID == "" {
		return Identity{}, false
	}
	email, _ := ctx.Value(Email).(string)
	name, _ := ctx.Value(Name).(string)
	return Identity{UserID: userID, Email: email, Name: name}, true
}
