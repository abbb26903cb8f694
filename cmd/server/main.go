package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	app "github.com/omnihub/backend/internal/application/integration"
	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/infrastructure/auth"
	"github.com/omnihub/backend/internal/infrastructure/cache"
	"github.com/omnihub/backend/internal/infrastructure/config"
	"github.com/omnihub/backend/internal/infrastructure/logger"
	"github.com/omnihub/backend/internal/infrastructure/persistence"
	"github.com/omnihub/backend/internal/infrastructure/platform"
	"github.com/omnihub/backend/internal/infrastructure/scheduler"
	"github.com/omnihub/backend/internal/infrastructure/storage"
	"github.com/omnihub/backend/internal/infrastructure/telemetry"
	"github.com/omnihub/backend/internal/infrastructure/vault"
	"github.com/omnihub/backend/internal/interfaces/http/handler"
	"github.com/omnihub/backend/internal/interfaces/http/router"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting OmniHub",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	ctx := context.Background()

	// Telemetry: trace and meter providers degrade to no-ops when disabled
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	dispatchMetrics, err := telemetry.NewDispatchMetrics(meterProvider)
	if err != nil {
		log.Fatal("Failed to register dispatch metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: cfg.App.Name,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	// Credential vault
	credentialVault, err := vault.New(cfg.Vault.Key, cfg.Vault.Salt, log)
	if err != nil {
		log.Fatal("Failed to initialize credential vault", zap.Error(err))
	}

	// Repositories
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)

	// Connect-attempt counter: redis when reachable, in-memory otherwise
	var attempts cache.AttemptCounter
	if redisCounter, err := cache.NewRedisAttemptCounter(&cfg.Redis); err != nil {
		log.Warn("Redis unavailable, using in-memory connect throttling", zap.Error(err))
		attempts = cache.NewInMemoryAttemptCounter()
	} else {
		attempts = redisCounter
	}

	// Outbound executor shared by all adapters
	executor := platform.NewExecutor(
		&http.Client{Timeout: cfg.Dispatch.RequestTimeout},
		integration.RetryPolicy{
			MaxRetries: cfg.Dispatch.MaxRetries,
			BaseDelay:  cfg.Dispatch.RetryBaseDelay,
		},
		cfg.Dispatch.AdmissionTimeout,
		log,
	).WithMetrics(dispatchMetrics).WithAudit(auditRepo)

	factory := func(_ context.Context, p integration.Platform, secrets map[string]string) (integration.PlatformAdapter, error) {
		return platform.NewRESTAdapter(p, secrets, executor, log)
	}

	orchestrator := app.NewOrchestrator(
		credentialVault,
		credentialRepo,
		auditRepo,
		attempts,
		factory,
		dispatchMetrics,
		log,
		app.Config{
			FanoutConcurrency:  cfg.Dispatch.FanoutConcurrency,
			ConnectMaxAttempts: cfg.Connect.MaxAttempts,
			ConnectWindow:      cfg.Connect.Window,
		},
	)

	// Rebuild adapters for credentials stored before this process started
	if restored, err := orchestrator.Restore(ctx); err != nil {
		log.Error("Failed to restore stored connections", zap.Error(err))
	} else if restored > 0 {
		log.Info("Restored stored connections", zap.Int("count", restored))
	}

	// Audit archiver, optional
	var archiver scheduler.AuditArchiver
	if cfg.Storage.Enabled {
		s3Archiver, err := storage.NewAuditArchiver(&cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to initialize audit archiver", zap.Error(err))
		}
		archiver = s3Archiver
	}

	maintenance := scheduler.NewMaintenanceScheduler(
		credentialRepo,
		auditRepo,
		archiver,
		orchestrator,
		log,
		scheduler.MaintenanceConfig{
			Enabled:         cfg.Scheduler.Enabled,
			SweepInterval:   cfg.Scheduler.SweepInterval,
			ArchiveInterval: cfg.Scheduler.ArchiveInterval,
			AuditRetention:  cfg.Audit.Retention,
			ArchiveBatch:    cfg.Audit.ArchiveBatch,
		},
	)
	if err := maintenance.Start(ctx); err != nil {
		log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
	}

	// HTTP surface
	jwtService := auth.NewJWTService(cfg.JWT)
	handlers := router.Handlers{
		Health:      handler.NewHealthHandler(db, version),
		Webhook:     handler.NewWebhookHandler(orchestrator, log),
		Integration: handler.NewIntegrationHandler(orchestrator, log),
		Audit:       handler.NewAuditHandler(auditRepo, log),
		Auth:        handler.NewAuthHandler(jwtService),
	}
	engine, err := router.New(handlers, jwtService, log, router.Options{
		Env:            cfg.App.Env,
		ServiceName:    cfg.Telemetry.ServiceName,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		TracingEnabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced server shutdown", zap.Error(err))
	}
	if err := maintenance.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop maintenance scheduler", zap.Error(err))
	}
	if err := orchestrator.Close(); err != nil {
		log.Error("Failed to close adapters", zap.Error(err))
	}
	if err := attempts.Close(); err != nil {
		log.Error("Failed to close attempt counter", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down tracer provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Failed to stop profiler", zap.Error(err))
	}

	log.Info("Server stopped")
}
