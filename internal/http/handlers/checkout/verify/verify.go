// Package verify содержит HTTP-обработчик проверки итога сессии оплаты.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
)

// Service определяет операцию проверки сессии оплаты.
type Service interface {
	VerifySession(ctx context.Context, identity middlewarectx.Identity, sessionID string) (*checkout.VerifyResult, error)
}

// Handler обрабатывает GET /checkout/verify.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP проверяет итог сессии оплаты после возврата пользователя.
// @Summary Проверка итога сессии оплаты
// @Security BearerAuth
// @Tags checkout
// @Produce json
// @Param session_id query string true "Идентификатор сессии оплаты"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /checkout/verify [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.verify"

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

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.CodeValidation, "field session_id is a required field"))
		return
	}

	result, err := h.service.VerifySession(r.Context(), identity, sessionID)
	switch {
	case errors.Is(err, paymentprovider.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "checkout session not found"))
		return
	case errors.Is(err, checkout.ErrSessionNotOwned):
		log.Warn("session ownership violation", slog.String("session_id", sessionID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error(response.CodeAuthorization, "checkout session belongs to another subscriber"))
		return
	case err != nil:
		log.Error("failed to verify checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error(response.CodeExternalProvider, "failed to verify checkout session"))
		return
	}

	log.Info("checkout session verified",
		slog.String("session_id", sessionID), slog.String("state", string(result.State)))
	render.JSON(w, r, response.StatusOKWithData(result))
}
