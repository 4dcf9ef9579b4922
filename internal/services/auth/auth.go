// Package auth реализует регистрацию подписчиков и вход по паролю
// с выпуском сессионного JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/password"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/session"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// ErrInvalidCredentials email не найден или пароль не подошёл.
// Обе причины сведены в одну ошибку, чтобы ответ не раскрывал,
// зарегистрирован ли email.
var ErrInvalidCredentials = errors.New("invalid credentials")

// SubscriberRepository определяет методы хранилища, нужные аутентификации.
type SubscriberRepository interface {
	CreateSubscriber(ctx context.Context, email, name, passwordHash string) (string, error)
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
}

// Service реализует регистрацию и вход.
type Service struct {
	repo   SubscriberRepository
	maker  session.Maker
	hasher password.Hasher
	log    *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SubscriberRepository, maker session.Maker, hasher password.Hasher, log *slog.Logger) *Service {
	return &Service{repo: repo, maker: maker, hasher: hasher, log: log}
}

// Result итог успешной регистрации или входа.
type Result struct {
	SubscriberID string `json:"subscriber_id"`
	Token        string `json:"token"`
}

// Register создает подписчика с хешированным паролем и возвращает
// сессионный токен. Повторная регистрация email возвращает
// storage.ErrSubscriberExists.
func (s *Service) Register(ctx context.Context, email, name, rawPassword string) (*Result, error) {
	const op = "auth.Register"
	log := s.log.With(sl.Op(op), slog.String("email", email))

	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.CreateSubscriber(ctx, email, name, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.maker.GenerateToken(id, email, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscriber registered", slog.String("subscriber_id", id))
	return &Result{SubscriberID: id, Token: token}, nil
}

// Login проверяет пароль и возвращает сессионный токен.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (*Result, error) {
	const op = "auth.Login"

	sub, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.hasher.Compare(sub.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.maker.GenerateToken(sub.ID, sub.Email, sub.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Result{SubscriberID: sub.ID, Token: token}, nil
}
