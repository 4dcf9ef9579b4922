// Package create содержит HTTP-обработчик создания сессии оплаты.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
)

// Request — входные данные для создания сессии оплаты
type Request struct {
	Plan       string `json:"plan" validate:"required,oneof=starter pro enterprise"`
	SuccessURL string `json:"success_url" validate:"omitempty,url,max=2048"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url,max=2048"`
}

// Service определяет операцию создания сессии оплаты.
type Service interface {
	CreateSession(ctx context.Context, identity middlewarectx.Identity,
		tier models.SubscriptionTier, successURL, cancelURL string) (*paymentprovider.CheckoutSession, error)
}

// Handler обрабатывает POST /checkout/create.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP создает сессию оплаты выбранного тарифа.
// @Summary Создание сессии оплаты
// @Security BearerAuth
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body Request true "Тариф и адреса возврата"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /checkout/create [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.create"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	identity, ok := middlewarectx.IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error(response.CodeAuthentication, "session required"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.CodeValidation, "invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sess, err := h.service.CreateSession(r.Context(), identity,
		models.SubscriptionTier(req.Plan), req.SuccessURL, req.CancelURL)
	if errors.Is(err, checkout.ErrUnknownPlan) {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.CodeValidation, "unknown plan"))
		return
	}
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error(response.CodeExternalProvider, "failed to create checkout session"))
		return
	}

	log.Info("checkout session created", slog.String("session_id", sess.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"session_id": sess.ID,
		"url":        sess.URL,
	}))
}
