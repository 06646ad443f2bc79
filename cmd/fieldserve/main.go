package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/internal/billing/invoices"
	"github.com/fieldserve/fieldserve/internal/billing/payments"
	"github.com/fieldserve/fieldserve/internal/notify"
	"github.com/fieldserve/fieldserve/internal/observability"
	"github.com/fieldserve/fieldserve/internal/platform/cache"
	"github.com/fieldserve/fieldserve/internal/platform/db"
	"github.com/fieldserve/fieldserve/internal/settings"
	"github.com/fieldserve/fieldserve/internal/shared"
	"github.com/fieldserve/fieldserve/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis backs the per-invoice mutex and the notification queue. The API
	// still serves without it; payment writes lose the extra serialisation.
	var locks payments.Locker
	var notifier notify.Notifier = notify.Noop{}
	var jobsHandler *jobs.Handler
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, running degraded", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		locks = shared.NewMutex(redisClient, cfg.InvoiceLockTTL)

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		asynqClient := asynq.NewClient(redisOpts)
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		notifier = notify.NewQueueNotifier(asynqClient)
		jobsHandler = jobs.NewHandler(asynq.NewInspector(redisOpts), logger)
	}

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)

	settingsRepo := settings.NewRepository(pool)
	allocator := invoices.NewNumberAllocator(settingsRepo, logger)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, settingsRepo, allocator, notifier, audit, logger)

	paymentRepo := payments.NewRepository(pool)
	paymentService := payments.NewService(paymentRepo, invoiceRepo, locks, idemStore, audit, logger)

	router := app.NewRouter(app.RouterConfig{
		Logger:   logger,
		Config:   cfg,
		Metrics:  metrics,
		Invoices: invoices.NewHandler(invoiceService),
		Payments: payments.NewHandler(paymentService),
		Settings: settings.NewHandler(settingsRepo),
		Jobs:     jobsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
