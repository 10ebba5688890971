package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-payments/internal/auth"
	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/config"
	"github.com/noah-isme/backend-payments/internal/health"
	"github.com/noah-isme/backend-payments/internal/lock"
	"github.com/noah-isme/backend-payments/internal/obs"
	"github.com/noah-isme/backend-payments/internal/order"
	"github.com/noah-isme/backend-payments/internal/payment"
	"github.com/noah-isme/backend-payments/internal/ratelimit"
	"github.com/noah-isme/backend-payments/internal/resilience"
	"github.com/noah-isme/backend-payments/internal/store"
	"github.com/noah-isme/backend-payments/internal/tasks"
	"github.com/noah-isme/backend-payments/internal/webhook"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "json"), envOrDefault("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics("payments", nil)
	httpMetrics := obs.NewHTTPMetrics("payments", obs.ParseBucketsCSV(os.Getenv("METRICS_BUCKETS_MS")), nil)

	if envBool("TRACING_ENABLED", false) {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "payments-api",
			Endpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplingRatio: envFloat("TRACING_SAMPLING_RATIO", 1),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracer")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracer shutdown")
			}
		}()
	}

	if err := store.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	st, err := store.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("instrument redis tracing")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for queue")
	}
	queueClient := asynq.NewClient(asynqOpt)
	defer func() { _ = queueClient.Close() }()

	validate := validator.New()
	breaker := resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("stripe").WithLogger(logger)
	provider := payment.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeBaseURL, breaker)

	paySvc := &payment.Service{
		Store:    st,
		Provider: provider,
		Locker:   lock.Locker{R: rdb},
		LockTTL:  cfg.IntentLockTTL,
	}
	payHandler := &payment.Handler{Svc: paySvc, Validate: validate}
	orderHandler := &order.Handler{Repo: st, Validate: validate}

	webhookHandler := &webhook.Handler{
		Verifier:   &webhook.Verifier{Secret: cfg.StripeWebhookSecret, Tolerance: cfg.WebhookTolerance},
		Reconciler: &order.Reconciler{Store: st, Timeout: cfg.StorageTimeout},
		Replay:     rdb,
		ReplayTTL:  cfg.WebhookReplayTTL,
		Tasks:      &tasks.Enqueuer{Client: queueClient},
		Logger:     logger,
	}

	healthHandler := &health.Handler{Checker: dependencyChecker{store: st, redis: rdb}}

	writeLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: rdb, Prefix: "rl:payments:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{R: rdb, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	if user, pass := os.Getenv("PPROF_USER"), os.Getenv("PPROF_PASS"); user != "" && pass != "" {
		r.Route("/debug", func(dr chi.Router) {
			dr.Use(middleware.BasicAuth("pprof", map[string]string{user: pass}))
			dr.Mount("/", middleware.Profiler())
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/stripe", func(sr chi.Router) {
			sr.Method(http.MethodPost, "/webhook", webhookHandler)
			sr.Group(func(wr chi.Router) {
				wr.Use(writeLimiter.Middleware)
				wr.Use(idem.Middleware)
				wr.Post("/create-transaction", payHandler.CreateTransaction)
				wr.Post("/create-checkout-session", payHandler.CreateCheckoutSession)
			})
		})

		api.Route("/orders", func(or chi.Router) {
			or.With(writeLimiter.Middleware, idem.Middleware).Post("/", orderHandler.Create)
			or.Get("/", orderHandler.List)
			or.Get("/{orderId}", orderHandler.Get)
		})

		api.Get("/payments/{orderId}/status", payHandler.Status)

		if cfg.AdminJWTSecret != "" {
			tokenValidator := &auth.TokenValidator{
				Secret:   []byte(cfg.AdminJWTSecret),
				Issuer:   cfg.AdminJWTIssuer,
				Audience: cfg.AdminJWTAudience,
			}
			api.Route("/admin", func(ar chi.Router) {
				ar.Use(auth.RequireAdmin(tokenValidator))
				ar.Get("/webhook-events", listProcessedEvents(st, logger))
				ar.Get("/orders", orderHandler.List)
			})
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("payments api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

type dependencyChecker struct {
	store *store.Store
	redis *redis.Client
}

func (c dependencyChecker) PingDB(ctx context.Context) error    { return c.store.Ping(ctx) }
func (c dependencyChecker) PingRedis(ctx context.Context) error { return c.redis.Ping(ctx).Err() }

func listProcessedEvents(st *store.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		events, err := st.ListProcessedEvents(r.Context(), limit, offset)
		if err != nil {
			logger.Error().Err(err).Msg("list processed events")
			common.JSONError(w, http.StatusInternalServerError, "EVENTS_LIST_ERROR", "could not list events", nil)
			return
		}
		if events == nil {
			events = []store.ProcessedEvent{}
		}
		if subject, ok := common.AdminSubject(r.Context()); ok {
			logger.Info().Str("admin", subject).Int("count", len(events)).Msg("admin listed events")
		}
		common.JSON(w, http.StatusOK, map[string]any{"items": events, "limit": limit, "offset": offset})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
