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
	"github.com/Ramsey-B/clover/pkg/bridge"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadBridge()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("document bridge exited with error")
		os.Exit(1)
	}
}

// lazyBackend is filled in by the backend startup dependency.
type lazyBackend struct {
	bridge.Backend
}

func run(ctx context.Context, cfg config.BridgeConfig, logger ectologger.Logger) error {
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
	backend := &lazyBackend{}
	boot.AddDependency(startup.Func{
		Name: "backend",
		OnStart: func(ctx context.Context) error {
			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			backend.Backend = b
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if backend.Backend == nil {
				return nil
			}
			return backend.Close(ctx)
		},
	})

	checker := health.NewChecker(cfg.AppName).Require("backend", func(ctx context.Context) error {
		if backend.Backend == nil {
			return errors.New("backend not started")
		}
		return backend.Ping(ctx, "")
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
	}))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)
	bridge.NewHandler(backend, logger).RegisterRoutes(e.Group("/api/db", middleware.APIKey(logger, cfg.APIKey)))

	if err := boot.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]any{"port": cfg.Port, "backend": cfg.Backend}).Info("document bridge listening")
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

func openBackend(ctx context.Context, cfg config.BridgeConfig, logger ectologger.Logger) (bridge.Backend, error) {
	switch cfg.Backend {
	case "mongo":
		return bridge.NewMongoBackend(ctx, cfg.MongoURI, cfg.MongoTimeout, logger)
	case "postgres":
		db, err := database.Open(ctx, database.Config{
			Driver:          cfg.DatabaseDriver,
			Host:            cfg.DatabaseHost,
			Port:            cfg.DatabasePort,
			User:            cfg.DatabaseUserName,
			Password:        cfg.DatabasePassword,
			Name:            cfg.DatabaseName,
			SSLMode:         cfg.DatabaseSSLMode,
			MaxOpenConns:    cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		migrations := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
			Version:             uint(cfg.DatabaseMigrationVersion),
			Force:               cfg.DatabaseMigrationForce,
			AutoRollback:        cfg.DatabaseMigrationAutoRollback,
		})
		if err := migrations.MigratePostgres(db, cfg.DatabaseName); err != nil {
			_ = db.Close()
			return nil, err
		}
		return bridge.NewPostgresBackend(db, logger), nil
	case "memory":
		logger.Warn("using the in-memory backend, documents are lost on restart")
		return bridge.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown bridge backend %q", cfg.Backend)
	}
}
