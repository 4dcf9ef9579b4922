// Package cancel содержит административный HTTP-обработчик отмены подписки.
package cancel

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

// Request — входные данные административной отмены
type Request struct {
	SubscriberID string `json:"subscriber_id" validate:"required,uuid4"`
}

// Service определяет операцию административной отмены.
type Service interface {
	AdminCancel(ctx context.Context, subscriberID string) (*reconcile.CancelResult, error)
}

// Handler обрабатывает POST /admin/cancel.
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

// ServeHTTP отменяет все подписки подписчика у провайдера и понижает
// локальную запись.
// @Summary Административная отмена подписки
// @Security AdminAuth
// @Tags admin
// @Accept json
// @Produce json
// @Param request body Request true "Идентификатор подписчика"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.cancel"

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

	result, err := h.service.AdminCancel(r.Context(), req.SubscriberID)
	switch {
	case errors.Is(err, storage.ErrSubscriberNotFound):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "subscriber not found"))
		return
	case errors.Is(err, reconcile.ErrNoActiveSubscriptions):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "subscriber has no active subscriptions"))
		return
	case err != nil:
		log.Error("failed to cancel subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error(response.CodeExternalProvider, "failed to cancel subscriptions"))
		return
	}

	log.Info("subscriptions canceled",
		slog.String("subscriber_id", req.SubscriberID),
		slog.Int("canceled", len(result.CanceledIDs)),
		slog.Int("unresolved", len(result.UnresolvedIDs)))
	render.JSON(w, r, response.StatusOKWithData(result))
}
