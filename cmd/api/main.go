package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/virevamind/cmd/mainconfig"
	"github.com/wolfman30/virevamind/internal/api/router"
	"github.com/wolfman30/virevamind/internal/app/bootstrap"
	"github.com/wolfman30/virevamind/internal/bookings"
	"github.com/wolfman30/virevamind/internal/catalog"
	appconfig "github.com/wolfman30/virevamind/internal/config"
	"github.com/wolfman30/virevamind/internal/dispatch"
	"github.com/wolfman30/virevamind/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/virevamind/internal/http/middleware"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/internal/notify"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
	"github.com/wolfman30/virevamind/internal/schedule"
	"github.com/wolfman30/virevamind/internal/verification"
	"github.com/wolfman30/virevamind/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting virevamind API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger, prometheus.DefaultRegisterer, promhttp.Handler())
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	app.start(ctx)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := app.shutdown(shutdownCtx); err != nil {
		logger.Error("background shutdown incomplete", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app holds the wired service and the background work it owns.
type app struct {
	handler    http.Handler
	store      *catalog.Store
	sweeper    *ledger.Sweeper
	roller     *schedule.Roller
	limiter    *httpmiddleware.RateLimiter
	dispatcher *dispatch.Dispatcher
	verify     *verification.Service
	closers    []func()
	logger     *logging.Logger

	wg sync.WaitGroup
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer, metricsHandler http.Handler) (*app, error) {
	a := &app{logger: logger}
	m := metrics.NewLedgerMetrics(reg)

	// Catalog
	a.store = catalog.NewStore(logger)
	if cfg.SeedCatalog {
		n, err := a.store.LoadDefaultSeed()
		if err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("catalog seeded", "therapists", n)
	}

	readiness := map[string]handlers.Pinger{}
	if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		mirror := catalog.NewRedisMirror(redisClient, logger)
		if n, err := mirror.Restore(ctx, a.store); err != nil {
			logger.Warn("catalog mirror restore failed", "error", err)
		} else if n > 0 {
			logger.Info("catalog restored from redis", "therapists", n)
		}
		a.store.OnUpsert(mirror.Hook())
		readiness["redis"] = handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	// Ledger
	l := ledger.New(a.store, ledger.DefaultPriceTable(cfg.PriceCurrency), logger).
		WithHoldTTL(cfg.HoldTTL).
		WithTombstoneRetention(cfg.HoldTombstoneRetention).
		WithMetrics(m)
	a.sweeper = ledger.NewSweeper(l, logger).WithInterval(cfg.HoldSweepInterval)
	a.roller = schedule.NewRoller(a.store, logger).WithWindow(cfg.SlotWindowDays).WithSpec(cfg.SlotRolloverSpec)

	// AWS clients are only built when a component needs one.
	var (
		sesClient notify.SESAPI
		sqsClient notify.SQSAPI
		s3Client  verification.S3API
	)
	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		if cfg.EmailProvider == "ses" {
			sesClient = sesv2.NewFromConfig(awsCfg)
		}
		if cfg.NotifyQueueURL != "" {
			sqsClient = sqs.NewFromConfig(awsCfg)
		}
		if cfg.VerificationBucket != "" {
			s3Client = mainconfig.NewS3Client(awsCfg, cfg)
		}
	}

	// Follow-ups
	sender, provider, reason := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	if reason != "" {
		logger.Warn("email provider fallback", "provider", provider, "reason", reason)
	} else {
		logger.Info("email provider selected", "provider", provider)
	}
	notifier := bootstrap.BuildNotifier(cfg, sender, sqsClient, logger)
	a.dispatcher = dispatch.New(dispatch.Config{Workers: cfg.DispatchWorkers}, bootstrap.BuildMeetingProvider(cfg), notifier, a.store, logger).
		WithMetrics(m)

	bookingSvc := bookings.NewService(l, logger).WithMetrics(m).WithFollowups(a.dispatcher)
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		_ = a.dispatcher.Close(context.Background())
		return nil, err
	}
	if pool != nil {
		bookingSvc.WithArchive(bookings.NewRepository(pool))
		readiness["postgres"] = handlers.PingFunc(pool.Ping)
		a.closers = append(a.closers, pool.Close)
	} else {
		logger.Warn("DATABASE_URL not set; bookings are kept in memory only")
	}

	// Verification
	a.verify = verification.NewService(a.store, verification.SimulatedVerifier{Delay: cfg.VerificationDelay}, bootstrap.BuildDocumentStore(cfg, s3Client), logger).
		WithMetrics(m)

	a.limiter = httpmiddleware.NewRateLimiter(cfg.HoldRateLimit, cfg.HoldRateBurst)
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	a.handler = router.New(&router.Config{
		Logger:             logger,
		Therapists:         handlers.NewTherapistHandler(handlers.TherapistConfig{Catalog: a.store, Logger: logger}),
		Bookings:           handlers.NewBookingHandler(handlers.BookingConfig{Service: bookingSvc, Logger: logger, Now: l.Now}),
		Verification:       handlers.NewVerificationHandler(handlers.VerificationConfig{Service: a.verify, Logger: logger}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		ReadinessChecks:    readiness,
		HoldLimiter:        a.limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	return a, nil
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.EmailProvider == "ses" ||
		strings.TrimSpace(cfg.NotifyQueueURL) != "" ||
		strings.TrimSpace(cfg.VerificationBucket) != ""
}

// start launches the background loops. They stop when ctx is cancelled.
func (a *app) start(ctx context.Context) {
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.sweeper.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.limiter.Run(ctx, time.Minute)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.roller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("slot roller stopped", "error", err)
		}
	}()
}

// shutdown waits for the background loops (whose context must already be
// cancelled), drains follow-ups and verifications, then closes clients.
func (a *app) shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background loops: %w", ctx.Err()))
	}
	if err := a.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if err := a.verify.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("verification: %w", err))
	}
	for _, c := range a.closers {
		c()
	}
	return errors.Join(errs...)
}
