package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pharmalytics/pharmalytics/cmd/pharmalytics/cli"
	"github.com/pharmalytics/pharmalytics/internal/analytics"
	analytichttp "github.com/pharmalytics/pharmalytics/internal/analytics/http"
	"github.com/pharmalytics/pharmalytics/internal/app"
	"github.com/pharmalytics/pharmalytics/internal/auth"
	"github.com/pharmalytics/pharmalytics/internal/catalog"
	cataloghttp "github.com/pharmalytics/pharmalytics/internal/catalog/http"
	"github.com/pharmalytics/pharmalytics/internal/observability"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/platform/cache"
	"github.com/pharmalytics/pharmalytics/internal/platform/db"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
	"github.com/pharmalytics/pharmalytics/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(cfg, os.Args[2:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{
		StatementTimeout: query.MaxTimeout + 5*time.Second,
		ApplicationName:  "pharmalytics",
	})
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

	sessions := shared.NewSessionStore(redisClient, cfg.SessionCookie)
	authenticator := auth.NewAuthenticator(logger, auth.NewTokens(cfg.JWTSecret), sessions)

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL, logger, metrics)
	if err := analyticsCache.ListenForInvalidation(ctx, analytics.BumpChannel); err != nil {
		logger.Warn("analytics cache listener", slog.Any("error", err))
	}
	analyticsService := analytics.NewService(analytics.NewPGRepository(dbpool), analyticsCache, metrics, logger)
	analyticsHandler := analytichttp.NewHandler(logger, analyticsService, period.NewResolver(cfg.AnalyticsDefaultYear))

	catalogStores := catalog.NewStores(cfg.SearchCache(), cfg.DirectoryCacheTTL)
	if cfg.DirectoryShared {
		catalogStores.UseSharedDirectory(redisClient, cfg.DirectoryCacheTTL)
	}
	catalogService := catalog.NewService(catalog.NewPGRepository(dbpool), catalogStores, metrics, logger)
	catalogHandler := cataloghttp.NewHandler(logger, catalogService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Authenticator:    authenticator,
		AnalyticsHandler: analyticsHandler,
		CatalogHandler:   catalogHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runJobs handles `pharmalytics jobs <trigger|stats>`.
func runJobs(cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	year := fs.Int("year", 0, "year to warm, defaults to ANALYTICS_DEFAULT_YEAR")
	perPharmacy := fs.Bool("per-pharmacy", false, "also warm every pharmacy scope")
	source := fs.String("source", "cli", "origin recorded with a cache bump")
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pharmalytics jobs trigger <task> [flags] | jobs stats")
		return 2
	}
	command, rest := args[0], args[1:]

	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = c.Close() }()

	switch command {
	case "trigger":
		if len(rest) == 0 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		if err := fs.Parse(rest[1:]); err != nil {
			return 2
		}
		info, err := c.Trigger(context.Background(), rest[0], cli.TriggerOptions{Year: *year, PerPharmacy: *perPharmacy, Source: *source})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		scheduled, err := c.ListScheduled(10)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := cli.RenderStats(os.Stdout, stats, scheduled); err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown command %q\n", command)
		return 2
	}
}
