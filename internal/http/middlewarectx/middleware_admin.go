package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/ratelimit"
)

// AdminBearer возвращает middleware для административных маршрутов.
// Предъявленный bearer-токен сравнивается с серверным секретом за
// константное время. Пустой настроенный секрет выключает маршруты
// целиком (503), а не пропускает всех подряд.
func AdminBearer(secret string, sink audit.Sink, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminBearer"

			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if secret == "" {
				log.Error("admin token is not configured, admin routes disabled")
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error(response.CodeInternal, "admin endpoints disabled"))
				return
			}

			token := bearerToken(r)
			if token == "" {
				log.Error("missing admin bearer token")
				denyUnauthorized(w, r, sink, "missing admin bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Error("invalid admin bearer token")
				sink.Emit(r.Context(), audit.NewEvent(audit.KindUnauthorizedAccess,
					ratelimit.ClientKey(r), r.URL.Path, map[string]string{
						"user_agent": r.UserAgent(),
						"reason":     "invalid admin bearer token",
					}))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error(response.CodeAuthorization, "invalid admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
