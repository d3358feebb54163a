package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/backoffice"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/session"
	"github.com/noah-isme/backend-pos/internal/shift"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("branch_id", cfg.BranchID).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.OBSEnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.OBSServiceName,
			Endpoint:      cfg.OBSOTLPEndpoint,
			SamplingRatio: cfg.OBSSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	var guard session.ShiftGuard
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		guard = shift.Guard{R: redisClient}
	} else {
		logger.Warn().Msg("REDIS_URL not set; cross-device shift registration disabled")
	}

	breaker := resilience.NewBreaker(5, 30*time.Second)
	breaker.OnStateChange(func(state resilience.State) {
		logger.Warn().Str("state", state.String()).Msg("back office circuit state changed")
	})
	upstream := resilience.Client{
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		Breaker:     breaker,
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
	}

	store := backoffice.Client{BaseURL: cfg.BackofficeURL, HTTP: upstream}
	products := catalog.Client{BaseURL: cfg.CatalogURL, HTTP: upstream}

	bus := &events.Bus{
		Notifiers: []events.Notifier{
			events.NotifierFunc(func(_ context.Context, e events.Event) error {
				logger.Info().
					Str("event_id", e.ID.String()).
					Str("topic", e.Topic).
					Str("aggregate_id", e.AggregateID).
					Msg("domain event")
				return nil
			}),
		},
	}

	registry := session.NewRegistry(func(userID string) *session.Session {
		return session.New(session.Config{
			BranchID: cfg.BranchID,
			UserID:   userID,
			TaxBps:   cfg.TaxBps,
			Shipping: pricing.Money(cfg.ShippingCost),
			Currency: cfg.Currency,
			Catalog:  products,
			Store:    store,
			Guard:    guard,
			Events:   bus,
			Logger:   logger.With().Str("cashier_id", userID).Logger(),
		})
	})
	sessionHandler := &session.Handler{Registry: registry, Validator: validator.New()}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.MetricsMiddleware(httpMetrics))
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", session.HeaderCashierID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: readinessChecker{store: store, redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Mount("/api/v1", sessionHandler.Routes())

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	store backoffice.Client
	redis *redis.Client
}

func (c readinessChecker) PingBackoffice(ctx context.Context, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.store.Ping(probeCtx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(probeCtx).Err()
}
