package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	"github.com/pharmalytics/pharmalytics/internal/catalog"
	jobmetrics "github.com/pharmalytics/pharmalytics/internal/jobs"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const scopeTimeout = 45 * time.Second

// DashboardService is the part of the analytics service the warmup drives.
type DashboardService interface {
	KPIs(ctx context.Context, req analytics.Request) (analytics.KPIReport, error)
	Evolution(ctx context.Context, req analytics.Request) (analytics.EvolutionReport, error)
}

// PharmacyLister discovers the pharmacies to warm.
type PharmacyLister interface {
	Pharmacies(ctx context.Context) ([]catalog.Pharmacy, error)
}

// KPIWarmupJob pre-populates the KPI and evolution cache entries of a full
// year, network wide and optionally per pharmacy.
type KPIWarmupJob struct {
	Analytics   DashboardService
	Pharmacies  PharmacyLister
	DefaultYear int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewKPIWarmupJob wires dependencies for the warmup handler.
func NewKPIWarmupJob(svc DashboardService, pharmacies PharmacyLister, defaultYear int, logger *slog.Logger, metrics *jobmetrics.Metrics) *KPIWarmupJob {
	return &KPIWarmupJob{
		Analytics:   svc,
		Pharmacies:  pharmacies,
		DefaultYear: defaultYear,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks. A failing pharmacy does not stop the run;
// every failure is reported in the returned error.
func (j *KPIWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("kpi warmup: handler not configured")
	}
	var payload KPIWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("kpi warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Year == 0 {
		payload.Year = j.DefaultYear
	}

	tracker := j.metrics().Track(TaskAnalyticsKPIWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("year", payload.Year))
	logger.Info("starting kpi warmup")

	periods, err := period.NewResolver(payload.Year).Resolve(period.Request{Year: payload.Year})
	if err != nil {
		resultErr = fmt.Errorf("kpi warmup: %v: %w", err, asynq.SkipRetry)
		return resultErr
	}

	start := j.now()
	if err := j.warm(ctx, analytics.Request{Periods: periods}); err != nil {
		j.metrics().AddWarmed("network", "failure", 1)
		resultErr = fmt.Errorf("warm network scope: %w", err)
		logger.Error("warm network scope", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddWarmed("network", "success", 1)

	if !payload.PerPharmacy || j.Pharmacies == nil {
		logger.Info("completed kpi warmup", slog.Duration("duration", j.now().Sub(start)))
		return resultErr
	}

	pharmacies, err := j.Pharmacies.Pharmacies(ctx)
	if err != nil {
		resultErr = fmt.Errorf("load pharmacies: %w", err)
		logger.Error("load pharmacies", slog.Any("error", err))
		return resultErr
	}
	var (
		failures []error
		warmed   int
		failed   int
	)
	for i, ph := range pharmacies {
		if err := ctx.Err(); err != nil {
			j.metrics().AddWarmed("pharmacy", "skipped", len(pharmacies)-i)
			failures = append(failures, err)
			break
		}
		req := analytics.Request{Periods: periods, Filters: query.Filters{PharmacyIDs: []uuid.UUID{ph.ID}}}
		if err := j.warm(ctx, req); err != nil {
			logger.Warn("warm pharmacy scope", slog.String("pharmacy_id", ph.ID.String()), slog.Any("error", err))
			failures = append(failures, fmt.Errorf("pharmacy %s: %w", ph.ID, err))
			failed++
			continue
		}
		warmed++
	}
	j.metrics().AddWarmed("pharmacy", "success", warmed)
	j.metrics().AddWarmed("pharmacy", "failure", failed)
	resultErr = errors.Join(failures...)

	logger.Info("completed kpi warmup",
		slog.Int("pharmacies", len(pharmacies)),
		slog.Int("warmed", warmed),
		slog.Int("failures", failed),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *KPIWarmupJob) warm(ctx context.Context, req analytics.Request) error {
	scopeCtx, cancel := context.WithTimeout(ctx, scopeTimeout)
	defer cancel()
	if _, err := j.Analytics.KPIs(scopeCtx, req); err != nil {
		return err
	}
	_, err := j.Analytics.Evolution(scopeCtx, req)
	return err
}

func (j *KPIWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsKPIWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsKPIWarmup))
}

func (j *KPIWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *KPIWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// Bumper invalidates cached dashboard results.
type Bumper interface {
	Bump(ctx context.Context) error
}

// CacheBumpJob invalidates the dashboard cache when the ETL refreshes the views.
type CacheBumpJob struct {
	Cache   Bumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes cache bump tasks.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache bump: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAnalyticsCacheBump)
	err := j.Cache.Bump(ctx)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("bump dashboard cache", slog.String("source", payload.Source), slog.Any("error", err))
	} else {
		logger.Info("bumped dashboard cache", slog.String("source", payload.Source))
	}
	return tracker.End(err)
}
