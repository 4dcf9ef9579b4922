// Package reconcile реализует сверку состояния подписки: слияние фактов,
// сообщённых платёжным провайдером, в локальную запись подписчика.
// Все четыре точки входа — подтверждение оплаты, webhook, административная
// отмена и возврат — проходят через одну идемпотентную операцию слияния.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
)

var (
	// ErrNoActiveSubscriptions у подписчика нет действующих подписок у провайдера.
	ErrNoActiveSubscriptions = errors.New("no active external subscriptions")
	// ErrNoRefundablePayment у подписчика нет успешного платежа для возврата.
	ErrNoRefundablePayment = errors.New("no refundable payment")
)

// Триггеры сверки, попадают в метрики и аудит.
const (
	TriggerVerify  = "verify"
	TriggerWebhook = "webhook"
	TriggerCancel  = "admin_cancel"
	TriggerRefund  = "admin_refund"
)

// SubscriberRepository определяет методы хранилища, нужные сверке.
type SubscriberRepository interface {
	// GetByID возвращает подписчика по идентификатору.
	GetByID(ctx context.Context, id string) (*models.Subscriber, error)
	// ApplyReconcile применяет сверочное обновление с охраной от
	// перезаписи customer id и устаревших событий.
	ApplyReconcile(ctx context.Context, id string, upd models.ReconcileUpdate) (*models.Subscriber, bool, error)
}

// ProviderClient определяет операции провайдера, нужные административным действиям.
type ProviderClient interface {
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]paymentprovider.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*paymentprovider.Subscription, error)
	ListPayments(ctx context.Context, customerID string) ([]paymentprovider.Payment, error)
	CreateRefund(ctx context.Context, paymentID string) (*paymentprovider.Refund, error)
}

// CacheInvalidator сбрасывает кешированную запись подписчика после записи.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Service реализует сверку состояния подписки.
type Service struct {
	repo     SubscriberRepository
	provider ProviderClient
	cache    CacheInvalidator
	sink     audit.Sink
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SubscriberRepository, provider ProviderClient, cache CacheInvalidator, sink audit.Sink, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		cache:    cache,
		sink:     sink,
		log:      log,
	}
}

// Reconcile применяет обновление к записи подписчика через идемпотентное
// слияние. Правила:
//   - customer id после первой установки не меняется: отчёт провайдера
//     с другим значением — аномалия, она логируется и не применяется;
//   - обновление с токеном упорядочивания не новее уже применённого
//     отбрасывается; обновление без токена применяется безусловно;
//   - запись в хранилище — последний шаг, внешние вызовы при её сбое
//     повторно не выполняются.
//
// На каждый исход пишется ровно одно событие аудита.
func (s *Service) Reconcile(ctx context.Context, trigger, subscriberID string, upd models.ReconcileUpdate) (*models.Subscriber, bool, error) {
	return s.reconcile(ctx, trigger, subscriberID, upd, nil)
}

func (s *Service) reconcile(ctx context.Context, trigger, subscriberID string, upd models.ReconcileUpdate, extraDetail map[string]string) (*models.Subscriber, bool, error) {
	const op = "reconcile.Reconcile"
	log := s.log.With(sl.Op(op), slog.String("subscriber_id", subscriberID), slog.String("trigger", trigger))

	current, err := s.repo.GetByID(ctx, subscriberID)
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues(trigger, "error").Inc()
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if upd.ExternalCustomerID != nil && current.ExternalCustomerID != nil &&
		*upd.ExternalCustomerID != *current.ExternalCustomerID {
		log.Warn("provider reported conflicting customer id, ignoring",
			slog.String("stored", *current.ExternalCustomerID),
			slog.String("reported", *upd.ExternalCustomerID))
		upd.ExternalCustomerID = nil
	}

	sub, applied, err := s.repo.ApplyReconcile(ctx, subscriberID, upd)
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues(trigger, "error").Inc()
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if applied {
		if cacheErr := s.cache.Invalidate(ctx, "subscriber:"+subscriberID); cacheErr != nil {
			log.Warn("failed to invalidate subscriber cache", slog.Any("err", cacheErr))
		}
	}

	outcome := "applied"
	if !applied {
		outcome = "skipped_stale"
	}
	metrics.ReconcileOutcomes.WithLabelValues(trigger, outcome).Inc()

	detail := map[string]string{
		"trigger":    trigger,
		"outcome":    outcome,
		"subscriber": subscriberID,
	}
	if trigger == TriggerVerify {
		detail["action"] = "checkout_success"
	}
	for k, v := range extraDetail {
		detail[k] = v
	}
	kind := audit.KindSuspiciousRequest
	if trigger == TriggerCancel || trigger == TriggerRefund {
		kind = audit.KindAdminAction
	}
	s.sink.Emit(ctx, audit.NewEvent(kind, "", "", detail))

	log.Info("reconcile finished",
		slog.String("outcome", outcome),
		slog.String("status", string(sub.SubscriptionStatus)),
		slog.String("tier", string(sub.SubscriptionTier)))
	return sub, applied, nil
}

// CancelResult итог административной отмены подписок.
type CancelResult struct {
	CanceledIDs   []string           `json:"canceled_ids"`
	UnresolvedIDs []string           `json:"unresolved_ids,omitempty"`
	Subscriber    *models.Subscriber `json:"subscriber"`
}

// AdminCancel отменяет все действующие подписки подписчика у провайдера.
// Из-за гонок при создании клиентов их может быть больше одной, отменяется
// каждая. Локальное понижение до canceled/starter применяется даже при
// частичном сбое отмен: запись "больше не тарифицируется" предпочтительнее
// зависшего active, а неотменённые подписки возвращаются оператору.
//
// Если действующих подписок нет, возвращается ErrNoActiveSubscriptions
// и локальная запись не изменяется.
func (s *Service) AdminCancel(ctx context.Context, subscriberID string) (*CancelResult, error) {
	const op = "reconcile.AdminCancel"
	log := s.log.With(sl.Op(op), slog.String("subscriber_id", subscriberID))

	sub, err := s.repo.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.ExternalCustomerID == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscriptions)
	}

	subscriptions, err := s.provider.ListActiveSubscriptions(ctx, *sub.ExternalCustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(subscriptions) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscriptions)
	}

	result := &CancelResult{}
	for _, external := range subscriptions {
		if _, cancelErr := s.provider.CancelSubscription(ctx, external.ID); cancelErr != nil {
			log.Error("failed to cancel external subscription",
				slog.String("subscription_id", external.ID), slog.Any("err", cancelErr))
			result.UnresolvedIDs = append(result.UnresolvedIDs, external.ID)
			continue
		}
		result.CanceledIDs = append(result.CanceledIDs, external.ID)
	}

	canceled := models.StatusCanceled
	starter := models.TierStarter
	updated, _, err := s.reconcile(ctx, TriggerCancel, subscriberID, models.ReconcileUpdate{
		Status: &canceled,
		Tier:   &starter,
	}, map[string]string{
		"action":         "admin_cancel",
		"canceled_ids":   join(result.CanceledIDs),
		"unresolved_ids": join(result.UnresolvedIDs),
	})
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	result.Subscriber = updated
	return result, nil
}

// RefundResult итог административного возврата.
type RefundResult struct {
	RefundID   string             `json:"refund_id"`
	PaymentID  string             `json:"payment_id"`
	Amount     int64              `json:"amount"`
	Subscriber *models.Subscriber `json:"subscriber"`
}

// AdminRefund возвращает средства по последнему успешному платежу
// подписчика (первому в упорядоченном по времени списке). Более ранние
// платежи не перечисляются и не возвращаются. После успешного возврата
// запись понижается до canceled/starter, как при отмене.
func (s *Service) AdminRefund(ctx context.Context, subscriberID string) (*RefundResult, error) {
	const op = "reconcile.AdminRefund"

	sub, err := s.repo.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.ExternalCustomerID == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRefundablePayment)
	}

	payments, err := s.provider.ListPayments(ctx, *sub.ExternalCustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var target *paymentprovider.Payment
	for i := range payments {
		if payments[i].Status == paymentprovider.PaymentStatusSucceeded && payments[i].Amount > 0 {
			target = &payments[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRefundablePayment)
	}

	refund, err := s.provider.CreateRefund(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	canceled := models.StatusCanceled
	starter := models.TierStarter
	updated, _, err := s.reconcile(ctx, TriggerRefund, subscriberID, models.ReconcileUpdate{
		Status: &canceled,
		Tier:   &starter,
	}, map[string]string{
		"action":     "admin_refund",
		"refund_id":  refund.ID,
		"payment_id": target.ID,
	})
	result := &RefundResult{
		RefundID:   refund.ID,
		PaymentID:  target.ID,
		Amount:     refund.Amount,
		Subscriber: updated,
	}
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func join(ids []string) string {
	return strings.Join(ids, ",")
}

// statusFromProvider переводит статус подписки провайдера в локальный.
func statusFromProvider(providerStatus string) (models.SubscriptionStatus, bool) {
	switch providerStatus {
	case "active":
		return models.StatusActive, true
	case "trialing":
		return models.StatusTrialing, true
	case "past_due":
		return models.StatusPastDue, true
	case "canceled":
		return models.StatusCanceled, true
	}
	return "", false
}
