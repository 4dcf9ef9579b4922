package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// WebhookEvent разобранное уведомление провайдера об изменении подписки.
// CreatedAt служит токеном упорядочивания при слиянии.
type WebhookEvent struct {
	Type           string    `json:"type"`
	SubscriberID   string    `json:"subscriber_id"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id"`
	PriceID        string    `json:"price_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Типы событий провайдера, которые ядро применяет к записи подписчика.
const (
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventPaymentRefunded     = "payment.refunded"
)

// ApplyWebhook переводит событие провайдера в сверочное обновление.
// Неизвестный тип события или неизвестный подписчик подтверждаются
// без ошибки: провайдер будет повторять доставку, а чинить тут нечего.
func (s *Service) ApplyWebhook(ctx context.Context, event WebhookEvent) error {
	const op = "reconcile.ApplyWebhook"
	log := s.log.With(sl.Op(op), slog.String("type", event.Type))

	var upd models.ReconcileUpdate
	eventAt := event.CreatedAt

	switch event.Type {
	case EventSubscriptionUpdated:
		status, ok := statusFromProvider(event.Status)
		if !ok {
			log.Warn("unknown subscription status in webhook", slog.String("status", event.Status))
			return nil
		}
		upd.Status = &status
		if tier, ok := models.TierForPrice(event.PriceID); ok {
			upd.Tier = &tier
		}
		if event.CustomerID != "" {
			upd.ExternalCustomerID = &event.CustomerID
		}
		if event.SubscriptionID != "" {
			upd.ExternalSubscriptionID = &event.SubscriptionID
		}
	case EventSubscriptionDeleted, EventPaymentRefunded:
		canceled := models.StatusCanceled
		starter := models.TierStarter
		upd.Status = &canceled
		upd.Tier = &starter
	default:
		log.Info("ignoring webhook event of unknown type")
		return nil
	}

	if !eventAt.IsZero() {
		upd.EventAt = &eventAt
	}

	if event.SubscriberID == "" {
		log.Warn("webhook event carries no subscriber id, ignoring")
		return nil
	}

	_, _, err := s.Reconcile(ctx, TriggerWebhook, event.SubscriberID, upd)
	if errors.Is(err, storage.ErrSubscriberNotFound) {
		log.Warn("webhook for unknown subscriber, acknowledging", slog.String("subscriber_id", event.SubscriberID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
