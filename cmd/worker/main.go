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

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	"github.com/pharmalytics/pharmalytics/internal/app"
	"github.com/pharmalytics/pharmalytics/internal/catalog"
	jobmetrics "github.com/pharmalytics/pharmalytics/internal/jobs"
	"github.com/pharmalytics/pharmalytics/internal/observability"
	"github.com/pharmalytics/pharmalytics/internal/platform/cache"
	"github.com/pharmalytics/pharmalytics/internal/platform/db"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		MaxConns:         4,
		StatementTimeout: query.MaxTimeout + 5*time.Second,
		ApplicationName:  "pharmalytics-worker",
	})
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

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL, logger, metrics)
	analyticsService := analytics.NewService(analytics.NewPGRepository(pool), analyticsCache, metrics, logger)

	warmupJob := jobs.NewKPIWarmupJob(analyticsService, catalog.NewPGRepository(pool), cfg.AnalyticsDefaultYear, logger, jobMetrics)
	bumpJob := &jobs.CacheBumpJob{Cache: analyticsCache, Logger: logger, Metrics: jobMetrics}

	warmupTask, err := jobs.NewKPIWarmupTask(jobs.KPIWarmupPayload{PerPharmacy: true})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAnalyticsKPIWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskAnalyticsCacheBump, Handler: bumpJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Hour)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
