package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/internal/billing/invoices"
	"github.com/fieldserve/fieldserve/internal/notify"
	"github.com/fieldserve/fieldserve/internal/platform/db"
	"github.com/fieldserve/fieldserve/internal/settings"
	"github.com/fieldserve/fieldserve/internal/shared"
	"github.com/fieldserve/fieldserve/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	asynqClient := asynq.NewClient(redisOpts)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	settingsRepo := settings.NewRepository(pool)
	allocator := invoices.NewNumberAllocator(settingsRepo, logger)
	notifier := notify.NewQueueNotifier(asynqClient)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, settingsRepo, allocator, notifier, audit, logger)

	scanJob := jobs.NewOverdueScanJob(invoiceService, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idemStore, logger)
	noticeJob := jobs.NewNoticeJob(logger)

	scanTask, err := jobs.NewOverdueScanTask(500)
	if err != nil {
		logger.Error("build overdue scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(48)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueScan, Handler: scanJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
			{Type: notify.TaskInvoiceIssued, Handler: noticeJob.HandleIssued},
			{Type: notify.TaskInvoiceOverdue, Handler: noticeJob.HandleOverdue},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanSpec, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
