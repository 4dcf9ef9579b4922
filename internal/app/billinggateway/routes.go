package billinggateway

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/config"
	admincancel "github.com/magabrotheeeer/billing-gateway/internal/http/handlers/admin/cancel"
	adminrefund "github.com/magabrotheeeer/billing-gateway/internal/http/handlers/admin/refund"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/signup"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/billing/portal"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/billing/webhook"
	checkoutcreate "github.com/magabrotheeeer/billing-gateway/internal/http/handlers/checkout/create"
	checkoutverify "github.com/magabrotheeeer/billing-gateway/internal/http/handlers/checkout/verify"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/health"
	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/session"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/ratelimit"
	authservice "github.com/magabrotheeeer/billing-gateway/internal/services/auth"
	checkoutservice "github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
	reconcileservice "github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	maker session.Maker, sink audit.Sink,
	authService *authservice.Service, checkoutService *checkoutservice.Service,
	reconcileService *reconcileservice.Service, healthAggregator *metrics.Health) {

	admitStore := ratelimit.NewStore(time.Duration(cfg.WindowMS) * time.Millisecond)
	throttle := rate.NewLimiter(rate.Limit(100), 200)

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.Throttle(throttle, logger),
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.With(middlewarectx.Admit(admitStore, cfg.SignupLimit, "signup", sink, logger)).
			Post("/signup", signup.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)

		// Webhook провайдера, подпись проверяется в обработчике
		r.Post("/billing/webhook", webhook.New(logger, reconcileService, sink, cfg.WebhookSecret).ServeHTTP)

		// Группа с сессионной аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.Session(maker, sink, logger))
			r.With(middlewarectx.Admit(admitStore, cfg.CheckoutLimit, "checkout_create", sink, logger)).
				Post("/checkout/create", checkoutcreate.New(logger, checkoutService).ServeHTTP)
			r.With(middlewarectx.Admit(admitStore, cfg.VerifyLimit, "checkout_verify", sink, logger)).
				Get("/checkout/verify", checkoutverify.New(logger, checkoutService).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, checkoutService).ServeHTTP)
		})

		// Административная группа
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminBearer(cfg.AdminToken, sink, logger))
			r.Use(middlewarectx.Admit(admitStore, cfg.AdminLimit, "admin", sink, logger))
			r.Post("/admin/cancel", admincancel.New(logger, reconcileService).ServeHTTP)
			r.Post("/admin/refund", adminrefund.New(logger, reconcileService).ServeHTTP)
		})

		r.Get("/health", health.New(logger, healthAggregator).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
