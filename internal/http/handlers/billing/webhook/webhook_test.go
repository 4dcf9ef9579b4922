package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ApplyWebhook(ctx context.Context, event reconcile.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_ServeHTTP(t *testing.T) {
	validBody := []byte(`{"type":"subscription.updated","subscriber_id":"usr_1","status":"active"}`)

	tests := []struct {
		name           string
		body           []byte
		signature      string
		mockCalled     bool
		mockErr        error
		wantStatusCode int
		wantAuditKinds int
	}{
		{
			name:           "valid signature",
			body:           validBody,
			signature:      sign(validBody),
			mockCalled:     true,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "missing signature",
			body:           validBody,
			signature:      "",
			wantStatusCode: http.StatusUnauthorized,
			wantAuditKinds: 1,
		},
		{
			name:           "wrong signature",
			body:           validBody,
			signature:      sign([]byte("tampered")),
			wantStatusCode: http.StatusUnauthorized,
			wantAuditKinds: 1,
		},
		{
			name:           "signed but invalid json",
			body:           []byte("not a json"),
			signature:      sign([]byte("not a json")),
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "service failure",
			body:           validBody,
			signature:      sign(validBody),
			mockCalled:     true,
			mockErr:        assert.AnError,
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ServiceMock)
			if tt.mockCalled {
				serviceMock.On("ApplyWebhook", mock.Anything, mock.MatchedBy(func(e reconcile.WebhookEvent) bool {
					return e.Type == "subscription.updated" && e.SubscriberID == "usr_1"
				})).Return(tt.mockErr).Once()
			}

			recorder := audit.NewRecorder()
			handler := New(newNoopLogger(), serviceMock, recorder, testSecret)

			req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set("X-Api-Signature", tt.signature)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			require.Len(t, recorder.ByKind(audit.KindSuspiciousRequest), tt.wantAuditKinds)
			serviceMock.AssertExpectations(t)
		})
	}
}
