// Package health содержит HTTP-обработчик проверки состояния сервиса.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
)

// Handler обрабатывает GET /health.
type Handler struct {
	log    *slog.Logger
	health *metrics.Health
}

// New создает новый Handler.
func New(log *slog.Logger, health *metrics.Health) *Handler {
	return &Handler{log: log, health: health}
}

// Response сводное состояние сервиса и результаты отдельных проверок.
type Response struct {
	Status string                `json:"status"`
	Checks []metrics.CheckResult `json:"checks"`
}

// ServeHTTP возвращает состояние подсистем: healthy — 200,
// degraded — 207, unhealthy — 503.
// @Summary Состояние сервиса
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state, checks := h.health.Evaluate(r.Context())

	switch state {
	case metrics.StateHealthy:
		w.WriteHeader(http.StatusOK)
	case metrics.StateDegraded:
		h.log.Warn("service degraded", slog.Any("checks", checks))
		w.WriteHeader(http.StatusMultiStatus)
	default:
		h.log.Error("service unhealthy", slog.Any("checks", checks))
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	render.JSON(w, r, Response{Status: string(state), Checks: checks})
}
