// Package billinggateway собирает приложение: хранилище, кеш, очередь
// аудита, клиент платёжного провайдера, сервисы и HTTP-сервер.
package billinggateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/cache"
	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/password"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/session"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/migrations"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/auth"
	"github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
	"github.com/magabrotheeeer/billing-gateway/internal/services/reconcile"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// App инкапсулирует HTTP-сервер и внешние соединения приложения.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
	cache  *cache.Cache
	rabbit *amqp.Connection
}

// New подключает внешние подсистемы и собирает сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RetriesRabbit, cfg.DelayRabbit)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := rabbitmq.SetupChannel(rabbitConn)
	if err != nil {
		return nil, err
	}

	sink := audit.NewMetered(audit.Fanout{
		audit.NewLogSink(logger),
		audit.NewAMQPSink(rabbitCh, logger),
	})

	providerClient := paymentprovider.NewClient(
		cfg.ProviderAccountID, cfg.ProviderSecretKey, cfg.ProviderAPIURL)
	maker := session.NewMaker(cfg.SessionSecretKey, cfg.SessionTTL)

	repo := storage.NewCached(db, cacheRedis, logger)

	reconcileService := reconcile.New(repo, providerClient, cacheRedis, sink, logger)
	checkoutService := checkout.New(providerClient, repo, reconcileService, sink, logger,
		cfg.DefaultSuccessURL, cfg.DefaultCancelURL)
	authService := auth.New(db, maker, password.NewHasher(cfg.BcryptCost), logger)

	health := metrics.NewHealth(
		metrics.Probe{Name: "postgres", Critical: true, Check: db.DB.PingContext},
		metrics.Probe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return cacheRedis.DB.Ping(ctx).Err() },
		},
		metrics.Probe{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if rabbitConn.IsClosed() {
					return errors.New("rabbitmq connection closed")
				}
				return nil
			},
		},
	)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, maker, sink,
		authService, checkoutService, reconcileService, health)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		rabbit: rabbitConn,
	}, nil
}

// Run запускает сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		if closeErr := a.rabbit.Close(); closeErr != nil {
			a.logger.Error("failed to close rabbitmq connection", slog.Any("err", closeErr))
		}
		return err
	}
}
