package paymentprovider

import "time"

// Customer клиент на стороне платёжного провайдера.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCustomerRequest запрос на создание клиента у провайдера.
// В метаданные записывается идентификатор подписчика.
type CreateCustomerRequest struct {
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession короткоживущая платёжная сессия провайдера.
// Ядро её не хранит, только читает и применяет эффект к записи подписчика.
type CheckoutSession struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	PriceID        string            `json:"price_id"`
	Status         string            `json:"status"`         // open | complete | expired
	PaymentStatus  string            `json:"payment_status"` // pending | paid | unpaid
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Статусы платёжной сессии и платежа, как их сообщает провайдер.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	PaymentStatusPaid    = "paid"
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
)

// CreateCheckoutSessionRequest запрос на создание платёжной сессии.
type CreateCheckoutSessionRequest struct {
	CustomerID string            `json:"customer_id"`
	PriceID    string            `json:"price_id"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Subscription подписка на стороне провайдера.
type Subscription struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	PriceID    string     `json:"price_id"`
	Status     string     `json:"status"` // active | past_due | canceled
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

// Payment один платёж клиента. Провайдер отдаёт список платежей,
// упорядоченный по времени, новые первыми.
type Payment struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"` // минорные единицы валюты
	Currency  string    `json:"currency"`
	Status    string    `json:"status"` // succeeded | failed | pending
	CreatedAt time.Time `json:"created_at"`
}

// PaymentStatusSucceeded статус успешно проведённого платежа.
const PaymentStatusSucceeded = "succeeded"

// Refund возврат средств по платежу.
type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PortalSession сессия портала самообслуживания биллинга.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}
