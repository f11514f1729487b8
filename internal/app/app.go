// Package app wires configuration, storage, domain services and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
	"github.com/xenking/loyalty-engine/internal/events"
	"github.com/xenking/loyalty-engine/internal/handler"
	"github.com/xenking/loyalty-engine/internal/repository"
	"github.com/xenking/loyalty-engine/internal/reservation"
	"github.com/xenking/loyalty-engine/pkg/health"
	"github.com/xenking/loyalty-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the event bus,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	campaignRepo := repository.NewCampaignRepository(pool)
	rewardRepo := repository.NewRewardRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	orderStore := repository.NewOrderStore(pool)

	// Reservation store: Redis when configured, in-memory otherwise.
	reservations, err := buildReservationStore(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}

	// Event bus with a logging subscriber. Handlers run outside the commit
	// transaction; their failures never affect committed orders.
	bus := events.NewBus(lg.Named("events"), cfg.Events.Buffer)
	bus.Subscribe(events.LogHandler(lg.Named("events")))

	// Domain services.
	entitlements := pricing.NewCalculator(campaignRepo, historyRepo)
	orderService := order.NewService(
		order.ServiceConfig{BasePointRate: decimal.NewFromFloat(cfg.BasePointRate)},
		productRepo,
		customerRepo,
		campaignRepo,
		rewardRepo,
		entitlements,
		reservations,
		orderStore,
		bus,
	)

	// HTTP handlers.
	h := handler.NewHandler(orderService, entitlements, customerRepo, ledgerRepo, reservations)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	var apiHandler http.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)
	apiHandler = otelhttp.NewHandler(apiHandler, "loyalty-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Run(gctx)
	})
	g.Go(func() error {
		// Graceful shutdown: drain readiness, wait, then stop the server.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// buildReservationStore selects the reservation backend. Redis also gets a
// readiness check so a broken token store takes the instance out of rotation.
func buildReservationStore(ctx context.Context, lg *zap.Logger, cfg *Config, healthSvc *health.Health) (reservation.Store, error) {
	if cfg.RedisURL == "" {
		store := reservation.NewMemoryStore(cfg.Reservation.TTL)
		store.StartSweeper(ctx, cfg.Reservation.SweepInterval)
		lg.Info("Using in-memory reservation store", zap.Duration("ttl", cfg.Reservation.TTL))
		return store, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	healthSvc.AddReadinessCheck("redis", 3*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	lg.Info("Using redis reservation store", zap.Duration("ttl", cfg.Reservation.TTL))
	return reservation.NewRedisStore(client, cfg.Reservation.TTL), nil
}
