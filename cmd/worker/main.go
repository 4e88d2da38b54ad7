package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/caravela-erp/caravela/internal/app"
	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/closing"
	jobmetrics "github.com/caravela-erp/caravela/internal/jobs"
	"github.com/caravela-erp/caravela/internal/observability"
	"github.com/caravela-erp/caravela/internal/platform/db"
	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/taxindex"
	"github.com/caravela-erp/caravela/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	auditService := audit.NewService(audit.NewRepository(dbpool))

	taxRegistry := taxindex.NewRegistry(taxindex.NewRepository(dbpool))
	closingService := closing.NewService(closing.NewRepository(dbpool), auditService, logger)
	portfolioService := portfolio.NewService(portfolio.NewRepository(dbpool), closingService, auditService, logger)

	metrics := observability.NewMetrics()
	seeder := jobs.NewSeeder(
		portfolioService,
		taxRegistry,
		closingService,
		jobmetrics.NewMetrics(metrics.Registerer()),
		logger,
	)

	seedTask, err := jobs.NewClosingSeedTask()
	if err != nil {
		logger.Error("build seed task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskClosingSeed, Handler: seeder.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ClosingSeedCron, Task: seedTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting",
		slog.String("redis_addr", cfg.RedisAddr),
		slog.String("seed_cron", cfg.ClosingSeedCron))
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
