// Package checkout оркестрирует платёжные сессии у внешнего провайдера:
// создание сессии оплаты, проверку её итога после возврата пользователя
// и выпуск ссылки на портал управления подпиской.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
)

var (
	// ErrUnknownPlan запрошенный тариф отсутствует в списке допустимых.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrSessionNotOwned сессия оплаты принадлежит другому подписчику.
	ErrSessionNotOwned = errors.New("checkout session not owned by caller")
	// ErrNoCustomer у подписчика нет клиента у провайдера.
	ErrNoCustomer = errors.New("subscriber has no provider customer")
)

// SessionState итоговое состояние сессии оплаты с точки зрения ядра.
type SessionState string

const (
	// StateComplete оплата прошла, подписка активирована.
	StateComplete SessionState = "complete"
	// StateFailed оплата не состоялась либо сессия истекла.
	StateFailed SessionState = "failed"
	// StatePending провайдер ещё не подтвердил итог оплаты.
	StatePending SessionState = "pending"
)

// ProviderClient определяет операции провайдера, нужные оркестратору.
type ProviderClient interface {
	FindCustomerByEmail(ctx context.Context, email string) (*paymentprovider.Customer, error)
	CreateCustomer(ctx context.Context, req paymentprovider.CreateCustomerRequest) (*paymentprovider.Customer, error)
	CreateCheckoutSession(ctx context.Context, req paymentprovider.CreateCheckoutSessionRequest) (*paymentprovider.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*paymentprovider.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*paymentprovider.PortalSession, error)
}

// Reconciler применяет подтверждённый итог оплаты к записи подписчика.
type Reconciler interface {
	Reconcile(ctx context.Context, trigger, subscriberID string, upd models.ReconcileUpdate) (*models.Subscriber, bool, error)
}

// SubscriberRepository определяет методы хранилища, нужные оркестратору.
type SubscriberRepository interface {
	GetByID(ctx context.Context, id string) (*models.Subscriber, error)
}

// Service реализует оркестрацию платёжных сессий.
type Service struct {
	provider   ProviderClient
	repo       SubscriberRepository
	reconciler Reconciler
	sink       audit.Sink
	log        *slog.Logger

	successURL string
	cancelURL  string
}

// New создает новый экземпляр Service. successURL и cancelURL используются,
// когда клиент не передал собственные адреса возврата.
func New(provider ProviderClient, repo SubscriberRepository, reconciler Reconciler,
	sink audit.Sink, log *slog.Logger, successURL, cancelURL string) *Service {
	return &Service{
		provider:   provider,
		repo:       repo,
		reconciler: reconciler,
		sink:       sink,
		log:        log,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateSession создает у провайдера сессию оплаты выбранного тарифа.
// Клиент у провайдера ищется по email и переиспользуется; при отсутствии
// создаётся новый с идентификатором подписчика в метаданных. Поиск и
// создание не атомарны, поэтому при одновременных запросах возможны
// дубликаты клиентов — административная отмена обходит их все.
func (s *Service) CreateSession(ctx context.Context, identity middlewarectx.Identity,
	tier models.SubscriptionTier, successURL, cancelURL string) (*paymentprovider.CheckoutSession, error) {
	const op = "checkout.CreateSession"
	log := s.log.With(sl.Op(op), slog.String("subscriber_id", identity.UserID))

	priceID, ok := models.PriceForTier(tier)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}

	s.sink.Emit(ctx, audit.NewEvent(audit.KindSuspiciousRequest, "", "", map[string]string{
		"action":     "checkout_started",
		"subscriber": identity.UserID,
		"tier":       string(tier),
		"price_id":   priceID,
	}))

	customer, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		s.emitFailure(ctx, identity.UserID, priceID, "customer")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if successURL == "" {
		successURL = s.successURL
	}
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, paymentprovider.CreateCheckoutSessionRequest{
		CustomerID: customer.ID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   map[string]string{"subscriber_id": identity.UserID},
	})
	if err != nil {
		s.emitFailure(ctx, identity.UserID, priceID, "session")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.sink.Emit(ctx, audit.NewEvent(audit.KindSuspiciousRequest, "", "", map[string]string{
		"action":     "checkout_created",
		"subscriber": identity.UserID,
		"tier":       string(tier),
		"price_id":   priceID,
		"session":    sess.ID,
	}))

	log.Info("checkout session created",
		slog.String("session_id", sess.ID), slog.String("price_id", priceID))
	return sess, nil
}

func (s *Service) resolveCustomer(ctx context.Context, identity middlewarectx.Identity) (*paymentprovider.Customer, error) {
	customer, err := s.provider.FindCustomerByEmail(ctx, identity.Email)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, paymentprovider.ErrNotFound) {
		return nil, err
	}
	return s.provider.CreateCustomer(ctx, paymentprovider.CreateCustomerRequest{
		Email:    identity.Email,
		Name:     identity.Name,
		Metadata: map[string]string{"subscriber_id": identity.UserID},
	})
}

func (s *Service) emitFailure(ctx context.Context, subscriberID, priceID, stage string) {
	s.sink.Emit(ctx, audit.NewEvent(audit.KindSuspiciousRequest, "", "", map[string]string{
		"action":     "checkout_failed",
		"subscriber": subscriberID,
		"price_id":   priceID,
		"stage":      stage,
	}))
}

// VerifyResult итог проверки сессии оплаты.
type VerifyResult struct {
	State      SessionState       `json:"state"`
	Subscriber *models.Subscriber `json:"subscriber,omitempty"`
}

// VerifySession запрашивает у провайдера состояние сессии и переводит его
// в итог для клиента. Сессия чужого подписчика отклоняется независимо от
// состояния оплаты. Только подтверждённая оплата (paid и complete)
// активирует подписку через сверку; незавершённая сессия остаётся pending
// и может быть проверена повторно.
func (s *Service) VerifySession(ctx context.Context, identity middlewarectx.Identity, sessionID string) (*VerifyResult, error) {
	const op = "checkout.VerifySession"
	log := s.log.With(sl.Op(op), slog.String("subscriber_id", identity.UserID), slog.String("session_id", sessionID))

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sess.Metadata["subscriber_id"] != identity.UserID {
		s.sink.Emit(ctx, audit.NewEvent(audit.KindSuspiciousRequest, "", "", map[string]string{
			"action":     "session_ownership_violation",
			"subscriber": identity.UserID,
			"session_id": sessionID,
		}))
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotOwned)
	}

	switch {
	case sess.PaymentStatus == paymentprovider.PaymentStatusPaid && sess.Status == paymentprovider.SessionStatusComplete:
		// подтверждённая оплата, активируем подписку
	case sess.PaymentStatus == paymentprovider.PaymentStatusUnpaid || sess.Status == paymentprovider.SessionStatusExpired:
		log.Info("checkout session failed",
			slog.String("status", sess.Status), slog.String("payment_status", sess.PaymentStatus))
		return &VerifyResult{State: StateFailed}, nil
	default:
		return &VerifyResult{State: StatePending}, nil
	}

	active := models.StatusActive
	upd := models.ReconcileUpdate{
		Status:  &active,
		EventAt: &sess.CreatedAt,
	}
	if sess.CustomerID != "" {
		upd.ExternalCustomerID = &sess.CustomerID
	}
	if sess.SubscriptionID != "" {
		upd.ExternalSubscriptionID = &sess.SubscriptionID
	}
	if tier, ok := models.TierForPrice(sess.PriceID); ok {
		upd.Tier = &tier
	}

	sub, _, err := s.reconciler.Reconcile(ctx, reconcile.TriggerVerify, identity.UserID, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &VerifyResult{State: StateComplete, Subscriber: sub}, nil
}

// PortalURL создает сессию портала управления подпиской и возвращает её
// адрес. Подписчик без клиента у провайдера получает ErrNoCustomer.
func (s *Service) PortalURL(ctx context.Context, identity middlewarectx.Identity) (string, error) {
	const op = "checkout.PortalURL"

	sub, err := s.repo.GetByID(ctx, identity.UserID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if sub.ExternalCustomerID == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}

	portal, err := s.provider.CreatePortalSession(ctx, *sub.ExternalCustomerID, s.successURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return portal.URL, nil
}
