package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/session"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/ratelimit"
)

// sessionCookie имя cookie с сессионным токеном; заголовок Authorization
// имеет приоритет над cookie.
const sessionCookie = "session"

// Session возвращает HTTP middleware, который проверяет сессионный JWT
// в заголовке Authorization или cookie.
//
// Если токен валиден, идентичность подписчика добавляется в контекст запроса,
// иначе пишется событие аудита unauthorized-access и возвращается 401.
func Session(maker session.Maker, sink audit.Sink, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Session"

			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr := bearerToken(r)
			if tokenStr == "" {
				if c, err := r.Cookie(sessionCookie); err == nil {
					tokenStr = c.Value
				}
			}
			if tokenStr == "" {
				log.Error("missing session token")
				denyUnauthorized(w, r, sink, "missing session token")
				return
			}

			claims, err := maker.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				denyUnauthorized(w, r, sink, "invalid or expired token")
				return
			}
			if claims.UserID == "" || claims.Email == "" {
				log.Error("token has no verified identity")
				denyUnauthorized(w, r, sink, "token has no verified identity")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Name:   claims.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func denyUnauthorized(w http.ResponseWriter, r *http.Request, sink audit.Sink, msg string) {
	sink.Emit(r.Context(), audit.NewEvent(audit.KindUnauthorizedAccess,
		ratelimit.ClientKey(r), r.URL.Path, map[string]string{
			"user_agent": r.UserAgent(),
			"reason":     msg,
		}))
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error(response.CodeAuthentication, msg))
}
