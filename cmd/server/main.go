package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/auth"
	"github.com/hera/autojournal/internal/infrastructure/cache"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"github.com/hera/autojournal/internal/infrastructure/escalation"
	"github.com/hera/autojournal/internal/infrastructure/event"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/infrastructure/persistence"
	"github.com/hera/autojournal/internal/infrastructure/rulebook"
	"github.com/hera/autojournal/internal/infrastructure/scheduler"
	"github.com/hera/autojournal/internal/infrastructure/telemetry"
	"github.com/hera/autojournal/internal/interfaces/http/handler"
	"github.com/hera/autojournal/internal/interfaces/http/middleware"
	"github.com/hera/autojournal/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()

	// Telemetry comes first so every later component picks up the global
	// tracer and meter providers
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Error("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil && cfg.Telemetry.LogsEnabled {
		otelCore := providers.ZapCore(level)
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, otelCore)
		}))
	}

	profiler, err := telemetry.StartProfiler(cfg.Profiling, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		_ = profiler.Stop()
	}()
	if profiler.Running() {
		providers.EnableSpanProfiles()
	}

	log.Info("Starting HERA auto-journal engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.InstrumentDB(db.DB, telemetry.DBTracingOptions{
			DBName:             cfg.Database.DBName,
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
			TracerProvider:     otel.GetTracerProvider(),
		}, log); err != nil {
			log.Fatal("Failed to instrument database", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Infrastructure adapters
	idempotency, err := cache.NewIdempotencyStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		_ = idempotency.Close()
	}()

	proposer, err := escalation.NewProposer(ctx, cfg.Escalation, log)
	if err != nil {
		log.Fatal("Failed to initialize escalation provider", zap.Error(err))
	}

	rulebooks, stopWatch, err := rulebook.NewProvider(cfg.Rulebook, log)
	if err != nil {
		log.Fatal("Failed to load rulebook", zap.Error(err))
	}
	defer stopWatch()

	metrics, err := telemetry.NewPostingMetrics(providers.Meter(telemetry.MeterName))
	if err != nil {
		log.Fatal("Failed to create posting metrics", zap.Error(err))
	}

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewPostingLogHandler())
	bus.Subscribe(metrics)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Application services
	policy, err := newPolicy(cfg.Posting)
	if err != nil {
		log.Fatal("Invalid posting configuration", zap.Error(err))
	}
	runner := persistence.NewGormTransactionRunner(db.DB)
	escalator := appposting.NewEscalator(proposer, rulebooks, appposting.EscalationConfig{
		Timeout:         cfg.Escalation.Timeout,
		ConfidenceFloor: cfg.Posting.ConfidenceFloor,
		RatePerSecond:   cfg.Escalation.RatePerSecond,
		Burst:           cfg.Escalation.Burst,
	}, metrics, log)
	builder := appposting.NewJournalBuilder(rulebooks)
	processor := appposting.NewPostingProcessor(runner, bus, cfg.Posting.WriteTimeout, log)
	aggregator := appposting.NewBatchAggregator(runner, processor, builder, policy, bus, log)
	auditRepo := persistence.NewGormAuditRepository(db.DB)

	ingestService := appposting.NewIngestService(appposting.IngestServiceDeps{
		Validator:   appposting.NewEventValidator(),
		Classifier:  appposting.NewClassifier(policy, rulebooks, escalator),
		Builder:     builder,
		Escalator:   escalator,
		Aggregator:  aggregator,
		Audit:       appposting.NewAuditLogger(auditRepo, metrics, cfg.Posting.AuditTimeout, log),
		Journals:    persistence.NewGormJournalRepository(db.DB),
		AuditRepo:   auditRepo,
		Idempotency: idempotency,
		IdemConfig: shared.IdempotencyConfig{
			Enabled: cfg.Idempotency.Enabled,
			TTL:     cfg.Idempotency.TTL,
		},
		Metrics: metrics,
		Logger:  log,
	})

	sweeper, err := scheduler.NewStaleBatchSweeper(ingestService, cfg.Sweep, log)
	if err != nil {
		log.Fatal("Failed to create stale batch sweeper", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start stale batch sweeper", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineOptions{
		HTTP:        cfg.HTTP,
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     providers.Enabled(),
		Logger:      log,
	})
	if err != nil {
		log.Fatal("Failed to configure HTTP engine", zap.Error(err))
	}
	engine.GET("/health", handler.NewHealthHandler(db, rulebooks, version).Health)

	jwtService := auth.NewJWTService(cfg.JWT)
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Use(middleware.APIVersion(cfg.HTTP.APIVersions), middleware.JWTAuth(jwtService)).
		Register(handler.NewPostingHandler(ingestService, cfg.Sweep.MaxAge)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Stale batch sweeper did not stop cleanly", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
