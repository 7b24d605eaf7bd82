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

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/ledger/journal"
	"github.com/meridian-erp/meridian-erp/internal/ledger/periods"
	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reports"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	var balanceCache *projection.BalanceCache
	if redisClient != nil {
		balanceCache = projection.NewBalanceCache(redisClient, cfg.BalanceCacheTTL, logger)
	}
	projectionRepo := projection.NewRepository(dbpool)
	projector := projection.NewProjector(projectionRepo, balanceCache, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	eventSink := jobs.NewEventSink(jobsClient, projector, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, auditLogger, projector)

	periodsRepo := periods.NewRepository(dbpool)
	periodsService := periods.NewService(periodsRepo, auditLogger, eventSink)

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo, auditLogger, eventSink, metrics)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, eventSink, metrics, stock.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		Costing:            cfg.Costing(),
	})

	reportsService := reports.NewService(reports.NewRepository(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		PeriodsHandler:  periods.NewHandler(logger, periodsService),
		JournalHandler:  journal.NewHandler(logger, journalService),
		StockHandler:    stock.NewHandler(logger, stockService),
		ReportsHandler:  reports.NewHandler(logger, reportsService),
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
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
