// Package webhook содержит HTTP-обработчик уведомлений платёжного
// провайдера с проверкой подписи HMAC-SHA256.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
)

// Service определяет операцию применения события провайдера.
type Service interface {
	ApplyWebhook(ctx context.Context, event reconcile.WebhookEvent) error
}

// Handler обрабатывает POST /billing/webhook.
type Handler struct {
	log           *slog.Logger
	service       Service
	sink          audit.Sink
	webhookSecret string
}

// New создает новый Handler. Секрет используется для проверки подписи тела.
func New(log *slog.Logger, service Service, sink audit.Sink, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		sink:          sink,
		webhookSecret: secret,
	}
}

// Проверка подписи webhook (X-Api-Signature)
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP применяет событие провайдера к записи подписчика.
// @Summary Webhook платёжного провайдера
// @Tags billing
// @Accept json
// @Success 200
// @Failure 400 {string} string
// @Failure 401 {string} string
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		h.sink.Emit(r.Context(), audit.NewEvent(audit.KindSuspiciousRequest, "", r.URL.Path, map[string]string{
			"action": "webhook_bad_signature",
		}))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event reconcile.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyWebhook(r.Context(), event); err != nil {
		log.Error("failed to apply webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed", slog.String("type", event.Type), slog.String("subscriber_id", event.SubscriberID))
	w.WriteHeader(http.StatusOK)
}
