package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/kasir-gateway/internal/analytics"
	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/catalog"
	"github.com/noah-isme/kasir-gateway/internal/common"
	"github.com/noah-isme/kasir-gateway/internal/config"
	"github.com/noah-isme/kasir-gateway/internal/customers"
	"github.com/noah-isme/kasir-gateway/internal/display"
	"github.com/noah-isme/kasir-gateway/internal/health"
	"github.com/noah-isme/kasir-gateway/internal/lock"
	"github.com/noah-isme/kasir-gateway/internal/obs"
	"github.com/noah-isme/kasir-gateway/internal/orders"
	"github.com/noah-isme/kasir-gateway/internal/relay"
	"github.com/noah-isme/kasir-gateway/internal/resilience"
	"github.com/noah-isme/kasir-gateway/internal/security"
	"github.com/noah-isme/kasir-gateway/internal/session"
	"github.com/noah-isme/kasir-gateway/internal/staff"
	storesettings "github.com/noah-isme/kasir-gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("store_id", cfg.StoreID).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kasir")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "kasir-gateway",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	breaker := resilience.NewBreaker(
		envInt("BREAKER_MIN_REQUESTS", 5),
		envFloat("BREAKER_FAILURE_RATIO", 0.6),
		envDurationMillis("BREAKER_OPEN_FOR_MS", 15000),
	).WithTarget("backend").WithLogger(logger)
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, breaker, logger)

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for relay")
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close relay client")
		}
	}()
	enqueuer := &relay.Enqueuer{Client: asynqClient, MaxRetry: cfg.RelayMaxRetry, Log: logger}

	sessionSvc := &session.Service{
		Verifier:       backendClient,
		Redis:          redisClient,
		Secret:         []byte(cfg.SessionSecret),
		TTL:            cfg.SessionTTL,
		OfflinePINHash: cfg.OfflinePINHash,
		Log:            logger,
	}
	sessionMw := session.Middleware{Service: sessionSvc}

	loginRate, err := limiter.NewRateFromFormatted(cfg.LoginRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse login rate limit")
	}
	loginLimiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "limiter:login"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise login rate limit store")
	}
	loginLimiter := limiter.New(loginLimiterStore, loginRate)

	validate := common.NewValidator()

	sessionHandler := &session.Handler{Service: sessionSvc, Limiter: loginLimiter, Validate: validate, Log: logger}
	staffHandler := staff.NewHandler(backendClient, enqueuer, validate, logger)
	customerHandler := customers.NewHandler(backendClient, validate, logger)
	catalogHandler := catalog.NewHandler(backendClient, catalog.NewCache(redisClient, cfg.CatalogCacheTTL), logger)
	orderHandler := orders.NewHandler(backendClient, enqueuer, validate, logger)
	analyticsHandler := analytics.NewHandler(backendClient, sessionSvc, logger)
	storeHandler := &storesettings.Handler{Client: backendClient, Validate: validate, Log: logger}

	state := display.NewState()
	hub := display.NewHub(state.Snapshot, logger)
	defer hub.Close()
	state.Subscribe(hub.Broadcast)
	interp := &display.Interpreter{
		State:          state,
		Sched:          display.TimerScheduler{},
		Log:            logger,
		QRPaymentTTL:   cfg.QRPaymentTTL,
		CartClearDelay: cfg.CartClearDelay,
		RefreshDelay:   cfg.RefreshDelay,
	}
	manager := &display.Manager{
		URL:            cfg.BackendEventsURL,
		Dialer:         display.WSDialer{},
		Interpreter:    interp,
		Log:            logger,
		StoreID:        cfg.StoreID,
		DeviceID:       cfg.DeviceID,
		ReconnectDelay: cfg.ReconnectDelay,
		RegisterDelay:  cfg.RegisterDelay,
	}
	locker := lock.Locker{R: redisClient}
	go runDisplayOwner(ctx, locker, cfg.StoreID, manager, logger)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS", true),
		ContentSecurityPolicy: envOrDefault("SECURE_CSP", ""),
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{redis: redisClient, backend: backendClient},
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		BackendTimeout: envDurationMillis("HEALTH_READY_BACKEND_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Handle("/ws/display", hub)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/session/login", sessionHandler.Login)
		api.Post("/session/logout", sessionHandler.Logout)

		// Pull fallback for kiosks that cannot hold a socket open.
		api.Get("/display/state", func(w http.ResponseWriter, _ *http.Request) {
			common.JSON(w, http.StatusOK, state.Snapshot())
		})

		api.Group(func(protected chi.Router) {
			protected.Use(sessionMw.RequirePIN)
			protected.Get("/session/me", sessionHandler.Me)
			protected.Get("/prefs/date-range", sessionHandler.GetDateRange)
			protected.Put("/prefs/date-range", sessionHandler.PutDateRange)

			staffHandler.Routes(protected)
			customerHandler.Routes(protected)
			catalogHandler.Routes(protected)
			orderHandler.Routes(protected)
			analyticsHandler.Routes(protected)
			storeHandler.Routes(protected)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("gateway starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("gateway shutdown complete")
}

// runDisplayOwner keeps exactly one gateway replica connected to the backend
// event channel. The lock holder runs the connection manager; the others wait
// for the lock to free up.
func runDisplayOwner(ctx context.Context, locker lock.Locker, storeID string, manager *display.Manager, logger zerolog.Logger) {
	for ctx.Err() == nil {
		err := locker.WithLock(ctx, "display:owner:"+storeID, 30*time.Second, manager.Run)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("display owner loop")
			time.Sleep(time.Second)
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis   *redis.Client
	backend *backend.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingBackend(_ context.Context, _ time.Duration) error {
	if c.backend == nil {
		return errors.New("backend not configured")
	}
	if !c.backend.Healthy() {
		return errors.New("backend circuit open")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
