// Package refund содержит административный HTTP-обработчик возврата платежа.
package refund

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// Request — входные данные административного возврата
type Request struct {
	SubscriberID string `json:"subscriber_id" validate:"required,uuid4"`
}

// Service определяет операцию административного возврата.
type Service interface {
	AdminRefund(ctx context.Context, subscriberID string) (*reconcile.RefundResult, error)
}

// Handler обрабатывает POST /admin/refund.
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

// ServeHTTP возвращает последний успешный платёж подписчика и понижает
// локальную запись.
// @Summary Административный возврат платежа
// @Security AdminAuth
// @Tags admin
// @Accept json
// @Produce json
// @Param request body Request true "Идентификатор подписчика"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/refund [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.refund"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	result, err := h.service.AdminRefund(r.Context(), req.SubscriberID)
	switch {
	case errors.Is(err, storage.ErrSubscriberNotFound):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "subscriber not found"))
		return
	case errors.Is(err, reconcile.ErrNoRefundablePayment):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "subscriber has no refundable payment"))
		return
	case err != nil:
		log.Error("failed to refund payment", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error(response.CodeExternalProvider, "failed to refund payment"))
		return
	}

	log.Info("payment refunded",
		slog.String("subscriber_id", req.SubscriberID),
		slog.String("refund_id", result.RefundID))
	render.JSON(w, r, response.StatusOKWithData(result))
}
