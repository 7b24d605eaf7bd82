package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
	"github.com/meridian-erp/meridian-erp/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var balanceCache *projection.BalanceCache
	if redisClient != nil {
		balanceCache = projection.NewBalanceCache(redisClient, cfg.BalanceCacheTTL, logger)
	}
	projectionRepo := projection.NewRepository(pool)
	projector := projection.NewProjector(projectionRepo, balanceCache, logger)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, nil, metrics, stock.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		Costing:            cfg.Costing(),
	})

	scanner := jobs.NewScanner(pool, projector, projectionRepo, stockRepo, metrics, logger)

	scanTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{})
	if err != nil {
		logger.Error("build integrity scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskProjectionRefresh, Handler: jobs.HandleProjectionRefresh(projector, logger)},
			{Type: jobs.TaskIntegrityScan, Handler: jobs.HandleIntegrityScan(scanner)},
			{Type: jobs.TaskFiscalYearCloseout, Handler: jobs.HandleFiscalYearCloseout(projector, logger)},
			{Type: jobs.TaskStockRebuild, Handler: jobs.HandleStockRebuild(stockService, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.HandleIdempotencyCleanup(idempotencyStore, 72*time.Hour, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
