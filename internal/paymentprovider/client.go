// Package paymentprovider реализует клиент REST API платёжного провайдера:
// клиенты, платёжные сессии, подписки, платежи и возвраты.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound сущность отсутствует на стороне провайдера.
var ErrNotFound = errors.New("paymentprovider: not found")

// Client клиент платёжного провайдера с базовой аутентификацией.
type Client struct {
	accountID  string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент платёжного провайдера.
func NewClient(accountID, secretKey, apiURL string) *Client {
	return &Client{
		accountID:  accountID,
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	reqURL := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.accountID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("unexpected status: " + resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FindCustomerByEmail ищет клиента по email. Пустой список от провайдера
// возвращается как ErrNotFound, как и 404 от точечных запросов:
// у вызывающих один контракт "не найдено" на весь клиент.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/customers?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[Customer]
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, ErrNotFound
	}
	return &list.Data[0], nil
}

// CreateCustomer создает нового клиента у провайдера.
func (c *Client) CreateCustomer(ctx context.Context, reqParams CreateCustomerRequest) (*Customer, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/customers", reqParams)
	if err != nil {
		return nil, err
	}
	var customer Customer
	if err := c.do(req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession создает платёжную сессию для клиента и цены.
func (c *Client) CreateCheckoutSession(ctx context.Context, reqParams CreateCheckoutSessionRequest) (*CheckoutSession, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/checkout/sessions", reqParams)
	if err != nil {
		return nil, err
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetCheckoutSession возвращает платёжную сессию по идентификатору.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveSubscriptions возвращает действующие подписки клиента.
// Из-за гонок при создании клиентов их может оказаться больше одной.
func (c *Client) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		"/subscriptions?customer_id="+url.QueryEscape(customerID)+"&status=active", nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[Subscription]
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// CancelSubscription отменяет подписку у провайдера.
func (c *Client) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListPayments возвращает платежи клиента, упорядоченные по времени,
// новые первыми.
func (c *Client) ListPayments(ctx context.Context, customerID string) ([]Payment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/payments?customer_id="+url.QueryEscape(customerID), nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[Payment]
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// CreateRefund создает возврат по платежу на полную сумму.
func (c *Client) CreateRefund(ctx context.Context, paymentID string) (*Refund, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/refunds", map[string]string{
		"payment_id": paymentID,
	})
	if err != nil {
		return nil, err
	}
	var refund Refund
	if err := c.do(req, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// CreatePortalSession создает сессию портала самообслуживания биллинга.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/portal/sessions", map[string]string{
		"customer_id": customerID,
		"return_url":  returnURL,
	})
	if err != nil {
		return nil, err
	}
	var portal PortalSession
	if err := c.do(req, &portal); err != nil {
		return nil, err
	}
	return &portal, nil
}
