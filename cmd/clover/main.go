package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/portal"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/scheduler"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := newZapLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("portal exited with error")
		os.Exit(1)
	}
}

func newZapLogger(level string, pretty bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = lvl
	return zapCfg.Build()
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	exporter, err := exporters.New(ctx, exporters.OTLPConfig{
		Enabled:  cfg.OTLPEnabled,
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	shutdownTracing := tracing.Setup(cfg.AppName, exporter)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	configured := cfg.StoreEndpoint != ""
	var gateway docstore.Gateway = docstore.NewMemory()
	if configured {
		gateway = docstore.NewClient(docstore.ClientConfig{
			Endpoint:  cfg.StoreEndpoint,
			Namespace: cfg.StoreNamespace,
			Timeout:   cfg.StoreTimeout,
			APIKey:    cfg.StoreAPIKey,
		}, logger)
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled || cfg.StateBackend == "redis" {
		redisClient = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		boot.AddDependency(startup.Func{
			Name:    "redis",
			OnStart: redisClient.Connect,
			OnStop:  func(context.Context) error { return redisClient.Close() },
		})
	}

	var stateStore access.StateStore
	var sessionDeps []string
	switch cfg.StateBackend {
	case "redis":
		stateStore = redis.NewStateStore(redisClient, "clover:state:")
		sessionDeps = []string{"redis"}
	default:
		fileStore, err := access.NewFileStore(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("failed to open state dir: %w", err)
		}
		stateStore = fileStore
	}
	session := access.NewSessionState(stateStore, logger)
	boot.AddDependency(startup.Func{Name: "session", Requires: sessionDeps, OnStart: session.Restore})

	var static []models.Agent
	if cfg.StaticAgentsFile != "" {
		if static, err = access.LoadStaticAgents(cfg.StaticAgentsFile); err != nil {
			return fmt.Errorf("failed to load static agents: %w", err)
		}
	}
	verifier := access.NewBcryptVerifier()
	auth := access.NewAuthenticator(
		access.FallbackAdmin(cfg.FallbackAdminName, cfg.FallbackAdminEmail, cfg.FallbackAdminPassword),
		gateway, static, verifier, logger,
	)

	var notifier reconcile.Notifier = reconcile.NewLogNotifier(logger)
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic), logger)
		boot.AddDependency(startup.Func{
			Name:   "kafka",
			OnStop: func(context.Context) error { return producer.Close() },
		})
		notifier = producer
	}

	platform := graph.NewClient(graph.Config{
		BaseURL:         cfg.GraphBaseURL,
		Version:         cfg.GraphVersion,
		Timeout:         cfg.GraphTimeout,
		MaxMessagePages: cfg.GraphMaxMessagePages,
	}, logger)

	opts := []reconcile.Option{reconcile.WithNotifier(notifier)}
	if cfg.RedisEnabled {
		opts = append(opts,
			reconcile.WithLocker(reconcile.NewRedisLocker(redis.NewLocker(redisClient, "clover:lock:"), cfg.SyncLockTTL)),
			reconcile.WithRateGate(reconcile.NewRedisRateGate(redis.NewRateLimiter(redisClient, "clover:ratelimit:"), cfg.PlatformCallLimit, cfg.PlatformCallWindow)),
		)
	}
	engine := reconcile.NewEngine(platform, gateway, reconcile.Config{
		SyncLimit:         cfg.SyncLimit,
		IncludeProfiles:   cfg.SyncProfiles,
		CorrelationWindow: cfg.CorrelationWindow,
		RateLimitBackoff:  cfg.RateLimitBackoff,
	}, logger, opts...)

	p := portal.New(portal.Deps{
		Gateway:    gateway,
		Platform:   platform,
		Engine:     engine,
		Outbox:     reconcile.NewOutbox(platform, gateway, notifier, logger),
		Auth:       auth,
		Session:    session,
		Verifier:   verifier,
		Configured: configured,
		Logger:     logger,
	})
	portalDeps := []string{"session"}
	if redisClient != nil {
		portalDeps = append(portalDeps, "redis")
	}
	boot.AddDependency(startup.Func{Name: "portal", Requires: portalDeps, OnStart: p.Load})

	if cfg.SyncEnabled && configured {
		boot.AddDependency(&syncScheduler{
			Scheduler: scheduler.NewScheduler("sync", cfg.SyncInterval, func(ctx context.Context) error {
				_, err := p.SyncNow(ctx)
				return err
			}, logger),
		})
	}

	checker := health.NewChecker(cfg.Version)
	if configured {
		checker.Require("store", func(ctx context.Context) error {
			if !gateway.Ping(ctx) {
				return errors.New("document store unreachable")
			}
			return nil
		})
	}
	if redisClient != nil {
		checker.Optional("redis", redisClient.Ping)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.HeaderNamespace},
	}))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)
	handlers.NewPortalHandler(p, session, logger).Register(e.Group("/api/v1"))

	if err := boot.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]any{"port": cfg.Port, "checks": checker.Names()}).Info("portal api listening")
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("http server failed")
		}
	}

	logger.Info("shutting down")
	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown failed")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("dependency shutdown failed")
	}
	return shutdownTracing(shutdownCtx)
}

// syncScheduler waits for the portal load before the first pass.
type syncScheduler struct {
	*scheduler.Scheduler
}

func (s *syncScheduler) DependsOn() []string { return []string{"portal"} }
