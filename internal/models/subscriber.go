// Package models содержит основные структуры и перечисления предметной области:
// подписчиков, статусы и тарифы подписок, а также обновления для сверки состояния.
package models

import "time"

// SubscriptionStatus статус биллинговой подписки подписчика.
type SubscriptionStatus string

const (
	// StatusNone подписка отсутствует.
	StatusNone SubscriptionStatus = "none"
	// StatusTrialing активен пробный период.
	StatusTrialing SubscriptionStatus = "trialing"
	// StatusActive подписка оплачена и активна.
	StatusActive SubscriptionStatus = "active"
	// StatusPastDue платеж просрочен, подписка ещё не отменена.
	StatusPastDue SubscriptionStatus = "past_due"
	// StatusCanceled подписка отменена.
	StatusCanceled SubscriptionStatus = "canceled"
)

// Valid проверяет, что статус входит в известный набор значений.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusNone, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// SubscriptionTier тарифный план подписчика.
type SubscriptionTier string

const (
	// TierStarter базовый тариф, на него понижаются отменённые подписки.
	TierStarter SubscriptionTier = "starter"
	// TierPro расширенный тариф.
	TierPro SubscriptionTier = "pro"
	// TierEnterprise максимальный тариф.
	TierEnterprise SubscriptionTier = "enterprise"
)

// Valid проверяет, что тариф входит в известный набор значений.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierStarter, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Subscriber локальная запись о биллинговых отношениях пользователя.
// Поле ExternalCustomerID после первой установки не перезаписывается.
type Subscriber struct {
	ID                     string             `json:"id"`
	Email                  string             `json:"email"`
	Name                   string             `json:"name"`
	PasswordHash           string             `json:"-"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status"`
	SubscriptionTier       SubscriptionTier   `json:"subscription_tier"`
	TrialEndsAt            *time.Time         `json:"trial_ends_at,omitempty"`
	ExternalCustomerID     *string            `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string            `json:"external_subscription_id,omitempty"`
	LastEventAt            *time.Time         `json:"last_event_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// ReconcileUpdate частичное обновление записи подписчика, поступившее
// из внешнего источника истины. Nil-поля не трогают текущее значение.
// EventAt — токен упорядочивания: обновление с EventAt не новее уже
// применённого отбрасывается; nil означает административное действие,
// которое применяется безусловно.
type ReconcileUpdate struct {
	ExternalCustomerID     *string
	ExternalSubscriptionID *string
	Status                 *SubscriptionStatus
	Tier                   *SubscriptionTier
	EventAt                *time.Time
}
