// Package portal содержит HTTP-обработчик выпуска ссылки на портал
// управления подпиской.
package portal

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
	"github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
)

// Service определяет операцию выпуска ссылки на портал.
type Service interface {
	PortalURL(ctx context.Context, identity middlewarectx.Identity) (string, error)
}

// Handler обрабатывает POST /billing/portal.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP возвращает адрес портала управления подпиской.
// @Summary Ссылка на портал управления подпиской
// @Security BearerAuth
// @Tags billing
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"

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

	url, err := h.service.PortalURL(r.Context(), identity)
	if errors.Is(err, checkout.ErrNoCustomer) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error(response.CodeNotFound, "subscriber has no billing profile"))
		return
	}
	if err != nil {
		log.Error("failed to create portal session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error(response.CodeExternalProvider, "failed to create portal session"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]string{"url": url}))
}
