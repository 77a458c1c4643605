// Package analytics computes the dashboard KPIs, evolution series and top-N
// breakdowns from the monthly materialized views.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharmalytics/pharmalytics/internal/kpi"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Recorder receives query and cache measurements.
type Recorder interface {
	ObserveQuery(query, outcome string, elapsed time.Duration)
	ObserveCache(cache, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveQuery(string, string, time.Duration) {}
func (nopRecorder) ObserveCache(string, string)                {}

// Request is a resolved, scope checked dashboard query.
type Request struct {
	Periods period.Resolution
	Filters query.Filters
}

// KPIReport holds the six KPI cards and the raw sums behind them.
type KPIReport struct {
	KPIs     map[string]kpi.Result `json:"kpis"`
	Current  kpi.Totals            `json:"current"`
	Previous kpi.Totals            `json:"previous"`
}

// EvolutionReport is the chart series of the analysis window plus the
// comparison summary.
type EvolutionReport struct {
	Mode     period.Granularity `json:"mode"`
	Points   []ChartPoint       `json:"points"`
	Insights kpi.Insights       `json:"insights"`
	Current  kpi.Totals         `json:"current"`
	Previous kpi.Totals         `json:"previous"`
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics Recorder
	logger  *slog.Logger
	timeout func(months, pharmacies, brandLabs int) time.Duration
}

// NewService wires a Repository with a Cache helper. cache and metrics may be nil.
func NewService(repo Repository, cache *Cache, metrics Recorder, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, metrics: metrics, logger: logger, timeout: query.TimeoutFor}
}

// Cache exposes the cache so callers can bump or listen for invalidations.
func (s *Service) Cache() *Cache {
	return s.cache
}

// KPIs computes the KPI cards of the analysis window against the comparison window.
func (s *Service) KPIs(ctx context.Context, req Request) (KPIReport, error) {
	return FetchJSON(ctx, s.cache, "kpis", keyKPIs(req), func(ctx context.Context) (KPIReport, error) {
		var cur, prev kpi.Totals
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.bounded(gctx, "totals_analysis", req.Periods.Analysis.Range, req.Filters, func(ctx context.Context) (err error) {
				cur, err = s.repo.Totals(ctx, req.Periods.Analysis.Range, req.Filters)
				return err
			})
		})
		g.Go(func() error {
			return s.bounded(gctx, "totals_comparison", req.Periods.Comparison.Range, req.Filters, func(ctx context.Context) (err error) {
				prev, err = s.repo.Totals(ctx, req.Periods.Comparison.Range, req.Filters)
				return err
			})
		})
		if err := g.Wait(); err != nil {
			return KPIReport{}, err
		}
		return KPIReport{KPIs: kpi.Build(cur, prev), Current: cur, Previous: prev}, nil
	})
}

// Evolution returns one chart point per bucket of the analysis window, empty
// buckets included, with the growth insights against the comparison window.
func (s *Service) Evolution(ctx context.Context, req Request) (EvolutionReport, error) {
	return FetchJSON(ctx, s.cache, "evolution", keyEvolution(req), func(ctx context.Context) (EvolutionReport, error) {
		analysis := req.Periods.Analysis.Range
		mode := period.SelectGranularity(analysis)
		var (
			rows      []SeriesRow
			cur, prev kpi.Totals
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.bounded(gctx, "series", analysis, req.Filters, func(ctx context.Context) (err error) {
				rows, err = s.repo.Series(ctx, analysis, req.Filters, mode)
				return err
			})
		})
		g.Go(func() error {
			return s.bounded(gctx, "totals_analysis", analysis, req.Filters, func(ctx context.Context) (err error) {
				cur, err = s.repo.Totals(ctx, analysis, req.Filters)
				return err
			})
		})
		g.Go(func() error {
			return s.bounded(gctx, "totals_comparison", req.Periods.Comparison.Range, req.Filters, func(ctx context.Context) (err error) {
				prev, err = s.repo.Totals(ctx, req.Periods.Comparison.Range, req.Filters)
				return err
			})
		})
		if err := g.Wait(); err != nil {
			return EvolutionReport{}, err
		}
		return EvolutionReport{
			Mode:     mode,
			Points:   ShapeSeries(period.Buckets(analysis, mode), rows),
			Insights: kpi.BuildInsights(cur, prev),
			Current:  cur,
			Previous: prev,
		}, nil
	})
}

// Top returns a ranked breakdown for one year or one month.
func (s *Service) Top(ctx context.Context, req query.TopRequest) ([]TopRow, error) {
	rng := period.DateRange{Start: period.NewDate(req.Year, 1, 1), End: period.NewDate(req.Year, 12, 31)}
	if req.Month > 0 {
		first := period.NewDate(req.Year, req.Month, 1)
		rng = period.DateRange{Start: first, End: first.EndOfMonth()}
	}
	return FetchJSON(ctx, s.cache, "top", keyTop(req), func(ctx context.Context) ([]TopRow, error) {
		var rows []TopRow
		err := s.bounded(ctx, "top_"+string(req.View), rng, req.Filters, func(ctx context.Context) (err error) {
			rows, err = s.repo.Top(ctx, req)
			return err
		})
		if rows == nil && err == nil {
			rows = []TopRow{}
		}
		return rows, err
	})
}

// bounded runs fn under the breadth scaled time budget of rng and f, and
// classifies its failure.
func (s *Service) bounded(ctx context.Context, op string, rng period.DateRange, f query.Filters, fn func(context.Context) error) error {
	limit := s.timeout(period.MonthsDiff(rng), len(f.PharmacyIDs), len(f.BrandLabs))
	qctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	err := fn(qctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.metrics.ObserveQuery(op, "ok", elapsed)
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) || query.IsStatementTimeout(err):
		s.metrics.ObserveQuery(op, "timeout", elapsed)
		return &shared.TimeoutError{Op: op, Limit: limit}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		s.metrics.ObserveQuery(op, "canceled", elapsed)
		return fmt.Errorf("%s: %w", op, context.Canceled)
	default:
		s.metrics.ObserveQuery(op, "error", elapsed)
		return &shared.UpstreamError{Op: op, Err: err}
	}
}
