// Package signup содержит HTTP-обработчик регистрации подписчика.
package signup

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
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sanitize"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/services/auth"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// Request — входные данные для регистрации
type Request struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Service определяет операцию регистрации.
type Service interface {
	Register(ctx context.Context, email, name, rawPassword string) (*auth.Result, error)
}

// Handler обрабатывает POST /signup.
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

// ServeHTTP регистрирует подписчика и возвращает сессионный токен.
// @Summary Регистрация подписчика
// @Tags auth
// @Accept json
// @Produce json
// @Param request body Request true "Данные регистрации"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /signup [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.signup"

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

	email := sanitize.Email(req.Email)
	name := sanitize.Text(req.Name)

	result, err := h.service.Register(r.Context(), email, name, req.Password)
	if errors.Is(err, storage.ErrSubscriberExists) {
		log.Info("duplicate registration attempt", slog.String("email", email))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error(response.CodeValidation, "email is already registered"))
		return
	}
	if err != nil {
		log.Error("registration failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error(response.CodeInternal, "failed to register subscriber"))
		return
	}

	log.Info("subscriber registered", slog.String("subscriber_id", result.SubscriberID))
	render.JSON(w, r, response.StatusOKWithData(result))
}
