package paymentprovider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("acct_test", "sk_test", srv.URL)
}

func TestClient_Auth_And_IdempotenceKey(t *testing.T) {
	var gotAuth, gotIdem string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotence-Key")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cus_1","email":"u@example.com"}`))
	})

	_, err := client.CreateCustomer(context.Background(), CreateCustomerRequest{Email: "u@example.com"})
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("acct_test:sk_test"))
	assert.Equal(t, expected, gotAuth)
	assert.NotEmpty(t, gotIdem)
}

func TestClient_FindCustomerByEmail(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantNotFound bool
		wantID       string
	}{
		{
			name:   "existing customer",
			body:   `{"data":[{"id":"cus_42","email":"u@example.com"}]}`,
			wantID: "cus_42",
		},
		{
			name:         "no customer is ErrNotFound",
			body:         `{"data":[]}`,
			wantNotFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "u@example.com", r.URL.Query().Get("email"))
				_, _ = w.Write([]byte(tt.body))
			})

			customer, err := client.FindCustomerByEmail(context.Background(), "u@example.com")
			if tt.wantNotFound {
				assert.ErrorIs(t, err, ErrNotFound)
				assert.Nil(t, customer)
			} else {
				require.NoError(t, err)
				require.NotNil(t, customer)
				assert.Equal(t, tt.wantID, customer.ID)
			}
		})
	}
}

func TestClient_GetCheckoutSession_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetCheckoutSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_GetCheckoutSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions/cs_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "cs_1",
			"customer_id": "cus_1",
			"subscription_id": "sub_1",
			"status": "complete",
			"payment_status": "paid",
			"metadata": {"subscriber_id": "usr_1"}
		}`))
	})

	session, err := client.GetCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "complete", session.Status)
	assert.Equal(t, "paid", session.PaymentStatus)
	assert.Equal(t, "usr_1", session.Metadata["subscriber_id"])
}

func TestClient_ListActiveSubscriptions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cus_1", r.URL.Query().Get("customer_id"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"data":[{"id":"sub_1","status":"active"},{"id":"sub_2","status":"active"}]}`))
	})

	subs, err := client.ListActiveSubscriptions(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestClient_UnexpectedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CancelSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}
