package middlewarectx

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/ratelimit"
)

// Admit возвращает middleware лимитера допуска: перед обработчиком запрос
// учитывается в окне своего ключа, отклонённые запросы получают 429 и
// событие аудита. Проверка выполняется до любых внешних вызовов.
func Admit(store *ratelimit.Store, limit int, route string, sink audit.Sink, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Admit"

			key := ratelimit.ClientKey(r)
			decision := store.Check(key, limit)

			metrics.AdmissionDecisions.WithLabelValues(route, strconv.FormatBool(decision.Allowed)).Inc()
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				log.Error("admission denied",
					sl.Op(op),
					slog.String("route", route),
					slog.String("key", key))
				sink.Emit(r.Context(), audit.NewEvent(audit.KindSuspiciousRequest,
					key, r.URL.Path, map[string]string{
						"reason": "rate limit exceeded",
						"route":  route,
					}))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error(response.CodeRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Throttle глобальный ограничитель пропускной способности процесса,
// внешний по отношению к по-ключевому лимитеру допуска.
func Throttle(limiter *rate.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Error("too many requests")
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error(response.CodeRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
