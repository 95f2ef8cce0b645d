package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-textile/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-textile/internal/app"
	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/observability"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/workflow"
	"github.com/odyssey-erp/odyssey-textile/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	dispatcher, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	service := workflow.NewService(workflow.Deps{
		UnitOfWork: workflow.NewPostgresUnitOfWork(dbpool),
		Authz:      authz.NewResolver(nil),
		Stock:      inventory.NewEngine(logger),
		Ledger:     ledger.NewEngine(logger, metrics),
		Dispatcher: dispatcher,
		Observer:   metrics,
		Logger:     logger,
	})

	actorCache := cache.NewJSONCache(redisClient, "odyssey", cfg.ActorCacheTTL)
	actors := authz.NewActorResolver(authz.NewEmployeeRepository(dbpool), actorCache, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Authn:  authz.Middleware{Resolver: actors, Logger: logger},
		WorkflowHandler: workflow.NewHandler(logger, service,
			workflow.WithWebhookSecret(cfg.WebhookSecret),
			workflow.WithWebhookRateLimit(cfg.WebhookRateLimit),
		),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobs handles `odyssey jobs trigger <name> [as-of]` and
// `odyssey jobs stats [queue]`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	helper, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() { _ = helper.Close() }()

	opts := cli.JobsOptions{}
	if len(args) > 0 {
		opts.Action = args[0]
	}
	switch opts.Action {
	case "trigger":
		if len(args) > 1 {
			opts.Name = args[1]
		}
		if len(args) > 2 {
			opts.AsOf = args[2]
		}
	case "stats":
		if len(args) > 1 {
			opts.Queue = args[1]
		}
	}
	return helper.Command(ctx, opts)
}
