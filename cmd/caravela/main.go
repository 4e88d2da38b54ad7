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

	"github.com/caravela-erp/caravela/internal/app"
	"github.com/caravela-erp/caravela/internal/audit"
	audithttp "github.com/caravela-erp/caravela/internal/audit/http"
	"github.com/caravela-erp/caravela/internal/closing"
	closinghttp "github.com/caravela-erp/caravela/internal/closing/http"
	"github.com/caravela-erp/caravela/internal/fxrate"
	"github.com/caravela-erp/caravela/internal/leader"
	leaderhttp "github.com/caravela-erp/caravela/internal/leader/http"
	"github.com/caravela-erp/caravela/internal/managerial"
	managerialhttp "github.com/caravela-erp/caravela/internal/managerial/http"
	"github.com/caravela-erp/caravela/internal/observability"
	"github.com/caravela-erp/caravela/internal/platform/cache"
	"github.com/caravela-erp/caravela/internal/platform/db"
	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/taxindex"
	taxindexhttp "github.com/caravela-erp/caravela/internal/taxindex/http"
	"github.com/caravela-erp/caravela/jobs"
	"github.com/caravela-erp/caravela/report"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService)

	taxRepo := taxindex.NewRepository(dbpool)
	taxRegistry := taxindex.NewRegistry(taxRepo)
	taxHandler := taxindexhttp.NewHandler(logger, taxRegistry)

	closingRepo := closing.NewRepository(dbpool)
	closingService := closing.NewService(closingRepo, auditService, logger)
	closingHandler := closinghttp.NewHandler(logger, closingService)

	portfolioRepo := portfolio.NewRepository(dbpool)
	portfolioService := portfolio.NewService(portfolioRepo, closingService, auditService, logger)
	portfolioHandler := portfolio.NewHandler(logger, portfolioService)

	leaderRepo := leader.NewRepository(dbpool, portfolioRepo)
	leaderEngine := leader.NewEngine(leaderRepo, closingService, auditService, logger)
	leaderHandler := leaderhttp.NewHandler(logger, leaderEngine)

	fxRepo := fxrate.NewRepository(dbpool)
	converter := fxrate.NewConverter(fxRepo, redisClient, cfg.FXCacheTTL, logger)
	managerialRepo := managerial.NewRepository(dbpool)
	aggregator := managerial.NewAggregator(managerialRepo, taxRegistry, converter)
	managerialHandler := managerialhttp.NewHandler(logger, aggregator)

	reportHandler, err := report.NewHandler(report.NewClient(cfg.GotenbergURL), aggregator, closingService, logger)
	if err != nil {
		logger.Error("build report handler", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("build jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ClosingHandler:    closingHandler,
		TaxIndexHandler:   taxHandler,
		LeaderHandler:     leaderHandler,
		ManagerialHandler: managerialHandler,
		PortfolioHandler:  portfolioHandler,
		AuditHandler:      auditHandler,
		ReportHandler:     reportHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
