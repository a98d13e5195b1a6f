package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appbookkeeping "github.com/ledgerflow/backend/internal/application/bookkeeping"
	appintegration "github.com/ledgerflow/backend/internal/application/integration"
	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/infrastructure/cache"
	"github.com/ledgerflow/backend/internal/infrastructure/config"
	"github.com/ledgerflow/backend/internal/infrastructure/fortnox"
	"github.com/ledgerflow/backend/internal/infrastructure/logger"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence"
	"github.com/ledgerflow/backend/internal/infrastructure/resilience"
	"github.com/ledgerflow/backend/internal/infrastructure/sie"
	"github.com/ledgerflow/backend/internal/infrastructure/storage"
	"github.com/ledgerflow/backend/internal/infrastructure/telemetry"
	"github.com/ledgerflow/backend/internal/interfaces/http/handler"
	"github.com/ledgerflow/backend/internal/interfaces/http/router"
)

const version = "1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		Service:     cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = loggerProvider.Attach(log, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	metrics, err := telemetry.NewIntegrationMetrics(meterProvider.Meter("ledgerflow/integration"))
	if err != nil {
		log.Fatal("Failed to create integration metrics", zap.Error(err))
	}

	log.Info("Starting LedgerFlow",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(ctx, &cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetryCfg, log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	cipher, err := persistence.NewTokenCipherFromBase64(cfg.Credential.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid credential encryption key", zap.Error(err))
	}
	if cipher == nil {
		log.Warn("Credential encryption key not set, tokens are stored in plaintext")
	}

	credentials := persistence.NewGormCredentialRepository(db.DB, cipher)
	policies := persistence.NewGormPolicyRepository(db.DB)
	reviews := persistence.NewGormReviewQueueRepository(db.DB)
	auditLog := persistence.NewGormAuditLogRepository(db.DB)

	healthChecks := map[string]handler.HealthCheck{
		"database": db.Health,
	}

	transmissions, redisClient, err := cache.NewTransmissionStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create transmission store", zap.Error(err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis", zap.Error(err))
			}
		}()
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	archive := newArchiveStore(ctx, cfg, log)

	// Accounting platform
	fortnoxCfg := &fortnox.Config{
		ClientID:       cfg.Fortnox.ClientID,
		ClientSecret:   cfg.Fortnox.ClientSecret,
		RedirectURI:    cfg.Fortnox.RedirectURI,
		TokenURL:       cfg.Fortnox.TokenURL,
		APIBaseURL:     cfg.Fortnox.APIBaseURL,
		TimeoutSeconds: cfg.Fortnox.TimeoutSeconds,
		VoucherSeries:  cfg.Fortnox.VoucherSeries,
	}
	tokenClient, err := fortnox.NewTokenClient(fortnoxCfg, nil)
	if err != nil {
		log.Fatal("Invalid Fortnox configuration", zap.Error(err))
	}

	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Jitter:         cfg.Retry.Jitter,
		NoJitter:       cfg.Retry.Jitter == 0,
		MaxElapsed:     cfg.Retry.MaxElapsed,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, resilience.OnRetry(func(e resilience.RetryEvent) {
		log.Warn("Retrying platform call",
			zap.Int("attempt", e.Attempt),
			zap.Duration("delay", e.Delay),
			zap.String("kind", string(e.Err.Kind())),
		)
	}))
	limiter := resilience.NewSlidingWindowLimiter(resilience.LimiterConfig{
		MaxCalls: cfg.RateLimit.MaxCalls,
		Window:   cfg.RateLimit.Window,
		Margin:   cfg.RateLimit.Margin,
	}, resilience.WithWaitObserver(metrics.ObserveLimiterWait))

	credentialManager := appintegration.NewCredentialManager(credentials, tokenClient, retrier,
		appintegration.CredentialManagerConfig{
			RefreshSkew:     cfg.Credential.RefreshSkew,
			MinValidity:     cfg.Credential.MinValidity,
			ExchangeTimeout: cfg.Credential.ExchangeTimeout,
		}, log)

	platform, err := fortnox.NewClient(fortnoxCfg, limiter, retrier, credentialManager,
		fortnox.WithTracer(tracerProvider.Tracer("ledgerflow/fortnox")),
		fortnox.WithObserver(metrics),
		fortnox.WithLogger(log),
	)
	if err != nil {
		log.Fatal("Failed to create Fortnox client", zap.Error(err))
	}

	// Services
	defaultPolicy := guardrail.Policy{
		Enabled:                  cfg.AutoPost.Enabled,
		MinConfidence:            cfg.AutoPost.MinConfidence,
		MaxAmount:                cfg.AutoPost.MaxAmount,
		RequireKnownCounterparty: cfg.AutoPost.RequireKnownCounterparty,
		AllowVATDeviation:        cfg.AutoPost.AllowVATDeviation,
	}
	postingService := appbookkeeping.NewPostingService(policies, reviews, transmissions, platform, auditLog,
		appbookkeeping.PostingConfig{
			VoucherSeries: fortnoxCfg.VoucherSeries,
			ClaimTTL:      cfg.AutoPost.ClaimTTL,
			Integration:   integration.IntegrationFortnox,
			DefaultPolicy: &defaultPolicy,
		},
		appbookkeeping.WithDecisionObserver(metrics),
		appbookkeeping.WithPostingLogger(log),
	)
	vatReportService := appbookkeeping.NewVATReportService(postingService, platform, archive,
		sie.NewExporter(cfg.App.Name, version), log)

	// HTTP
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}
	router.NewRouter(engine, router.WithHealth(handler.NewHealthHandler(healthChecks, 2*time.Second).Health)).
		Register(handler.NewPostingHandler(postingService)).
		Register(handler.NewVATReportHandler(vatReportService)).
		Register(handler.NewIntegrationHandler(credentialManager, integration.IntegrationFortnox, fortnoxCfg.RedirectURI)).
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

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   loggerProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Error("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// newArchiveStore uses S3 when a bucket is configured.
func newArchiveStore(ctx context.Context, cfg *config.Config, log *zap.Logger) bookkeeping.ArchiveStore {
	if cfg.Storage.Bucket == "" {
		log.Warn("Storage bucket not configured, SIE archives are kept in memory")
		return storage.NewMemoryArchiveStore()
	}
	store, err := storage.NewS3ArchiveStore(ctx, &cfg.Storage, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create archive store", zap.Error(err))
	}
	return store
}
