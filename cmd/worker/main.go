package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-textile/internal/app"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-textile/internal/jobs"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/observability"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
	"github.com/odyssey-erp/odyssey-textile/internal/workflow"
	"github.com/odyssey-erp/odyssey-textile/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	dispatcher, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = dispatcher.Close() }()

	service := workflow.NewService(workflow.Deps{
		UnitOfWork: workflow.NewPostgresUnitOfWork(pool),
		Stock:      inventory.NewEngine(logger),
		Ledger:     ledger.NewEngine(logger, metrics),
		Dispatcher: dispatcher,
		Observer:   metrics,
		Logger:     logger,
	})

	committed := jobs.NewDocumentCommittedHandler(logger, jobMetrics,
		jobs.NewActivityFeed(redisClient, "odyssey", jobs.DefaultFeedLength, 14*24*time.Hour),
	)
	integrityJob := jobs.NewLedgerIntegrityJob(service, logger, jobMetrics)
	stockJob := jobs.NewStockScanJob(service, logger, jobMetrics)
	overdueJob := jobs.NewOverdueSweepJob(service, logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Pruner:    shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   jobMetrics,
	}

	overdueTask, err := jobs.NewOverdueSweepTask(time.Time{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDocumentCommitted, Handler: committed.ProcessTask},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskStockScan, Handler: stockJob.Handle},
			{Type: jobs.TaskOverdueSweep, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewLedgerIntegrityTask()},
			{Spec: "0 * * * *", Task: jobs.NewStockScanTask()},
			{Spec: "5 0 * * *", Task: overdueTask},
			{Spec: "30 3 * * 0", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
