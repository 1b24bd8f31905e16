package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"livehub/internal/core/services"
	httphandlers "livehub/internal/handlers/http"
	"livehub/internal/infrastructure/ingest"
	"livehub/internal/infrastructure/middleware"
	"livehub/internal/infrastructure/monitoring"
	"livehub/internal/infrastructure/repositories"
	"livehub/internal/infrastructure/signal"
	"livehub/pkg/circuitbreaker"
	"livehub/pkg/config"
	rlog "livehub/pkg/logger"
	"livehub/pkg/retry"
	"livehub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const wsPath = "/ws"

// App is the hub process: one HTTP server carrying the websocket endpoint,
// the admin API and the probes.
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	factory    *repositories.RepositoryFactory
	tracer     *tracing.TracerProvider
	guard      *services.ModerationGuard
	presence   *services.PresenceService
	bridge     *services.StreamBridge
	ws         *signal.WebSocketServer
	subscriber *ingest.Subscriber

	router *gin.Engine
	srv    *http.Server
}

// New wires every component from cfg. Nothing is started.
func New(cfg *config.Config, zapLogger *zap.Logger) (*App, error) {
	logger := zapLogger.Sugar()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livehub",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	factory, err := repositories.NewRepositoryFactory(cfg, logger)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewPrometheusCollector(registry)

	conns := services.NewConnectionRegistry()
	hub := services.NewBroadcastHub(conns, cfg.Hub.SendTimeout, metrics, logger)
	guard := services.NewModerationGuard(factory.CreateModerationStore(), retry.Config{
		MaxAttempts:  cfg.Moderation.RetryAttempts,
		InitialDelay: cfg.Moderation.RetryInitialDelay,
		MaxDelay:     cfg.Moderation.RetryMaxDelay,
		Multiplier:   2,
		Jitter:       true,
	}, metrics, logger)
	presence := services.NewPresenceService(conns, guard, hub, logger)
	bridge := services.NewStreamBridge(factory.CreateStreamRepository(), hub, cfg.Streams.PlaybackURLTemplate, metrics, logger)
	breaker := circuitbreaker.New("chat-store", circuitbreaker.Config{
		FailureThreshold: cfg.Storage.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Storage.Breaker.OpenTimeout,
		HalfOpenProbes:   1,
	})
	chat := services.NewChatService(factory.CreateChatRepository(), breaker, logger)
	analytics := services.NewAnalyticsService(conns, chat, bridge, guard, logger)
	admin := services.NewAdminService(guard, chat, presence, analytics, hub, logger)
	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	opts := signal.DefaultOptions()
	opts.PingInterval = cfg.Hub.PingInterval
	opts.IdleTimeout = cfg.Hub.IdleTimeout
	opts.WriteTimeout = cfg.Hub.WriteTimeout
	opts.SendBuffer = cfg.Hub.SendBuffer
	opts.MaxMessageSize = cfg.Hub.MaxMessageSize
	opts.MaxChatLength = cfg.Hub.MaxChatLength
	opts.AllowedOrigins = cfg.Hub.AllowedOrigins
	if cfg.RateLimiting.Chat.MessagesPerSecond > 0 {
		opts.ChatRate = rate.Limit(cfg.RateLimiting.Chat.MessagesPerSecond)
		opts.ChatBurst = cfg.RateLimiting.Chat.Burst
	}
	ws := signal.NewWebSocketServer(signal.Dependencies{
		Registry: conns,
		Hub:      hub,
		Guard:    guard,
		Presence: presence,
		Bridge:   bridge,
		Chat:     chat,
		Admin:    admin,
		Auth:     auth,
		Metrics:  metrics,
	}, opts, logger)

	checker := monitoring.NewHealthChecker()
	checker.AddStoreCheck(factory.Ping, 2*time.Second)
	if client := factory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, 2*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.RequestLoggerMiddleware(rlog.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		exceptPath(wsPath, middleware.NewHTTPRateLimitMiddleware(cfg)),
		middleware.ErrorHandlerMiddleware(logger),
	)

	router.GET(wsPath, gin.WrapF(ws.HandleWebSocket))
	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	httphandlers.NewHealthHandler(checker, conns).SetupRoutes(router)
	httphandlers.NewAuthHandler(auth).SetupRoutes(router)
	httphandlers.NewModerationHandler(admin, auth).SetupRoutes(router)
	httphandlers.NewChatHandler(chat, admin, auth).SetupRoutes(router)
	httphandlers.NewStreamHandler(bridge, admin, auth, cfg.Streams.IngestToken, logger).SetupRoutes(router)
	httphandlers.NewAnalyticsHandler(analytics, auth).SetupRoutes(router)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		factory:  factory,
		tracer:   tracer,
		guard:    guard,
		presence: presence,
		bridge:   bridge,
		ws:       ws,
		router:   router,
		srv: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}
	if client := factory.RedisClient(); client != nil {
		a.subscriber = ingest.NewSubscriber(client, cfg.Streams.IngestChannel, bridge, logger)
	}
	return a, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.bridge.Restore(ctx); err != nil {
		a.logger.Warnw("Failed to restore live streams", "error", err)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go a.guard.Run(bgCtx, a.cfg.Moderation.SweepInterval, func(removed int) {
		if removed > 0 {
			a.presence.Broadcast(bgCtx)
		}
	})
	if a.subscriber != nil {
		go a.subscriber.Run(bgCtx)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Infow("Starting livehub server", "address", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		a.logger.Info("Shutting down livehub server")
	}

	stopBackground()
	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Errorw("Error during server shutdown", "error", err)
		_ = a.srv.Close()
	}
	closed := a.ws.CloseAll()
	a.logger.Infow("Closed websocket connections", "count", closed)

	if a.subscriber != nil {
		select {
		case <-a.subscriber.Done():
		case <-ctx.Done():
		}
	}
	if pending := a.guard.PendingCount(); pending > 0 {
		a.logger.Warnw("Moderation changes still unpersisted at shutdown", "pending", pending)
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Errorw("Error shutting down tracer", "error", err)
	}
	if err := a.factory.Close(); err != nil {
		a.logger.Errorw("Error closing repositories", "error", err)
	}
	a.logger.Info("livehub server stopped")
}

// Close releases resources when Run was never called.
func (a *App) Close() error {
	a.ws.CloseAll()
	_ = a.tracer.Shutdown(context.Background())
	return a.factory.Close()
}

func exceptPath(path string, mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == path {
			c.Next()
			return
		}
		mw(c)
	}
}
