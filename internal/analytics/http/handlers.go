package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	"github.com/pharmalytics/pharmalytics/internal/analytics/export"
	"github.com/pharmalytics/pharmalytics/internal/kpi"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/platform/httpx"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/scope"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

const (
	defaultTopLimit = 50
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AnalyticsService defines the dashboard data contract used by the handler.
type AnalyticsService interface {
	KPIs(ctx context.Context, req analytics.Request) (analytics.KPIReport, error)
	Evolution(ctx context.Context, req analytics.Request) (analytics.EvolutionReport, error)
	Top(ctx context.Context, req query.TopRequest) ([]analytics.TopRow, error)
}

// Handler serves the dashboard JSON endpoints and their exports.
type Handler struct {
	logger   *slog.Logger
	service  AnalyticsService
	resolver period.Resolver
	validate *validator.Validate
	csvPool  sync.Pool
	now      func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService, resolver period.Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		validate: httpx.NewValidator(),
		now:      time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type filterParams struct {
	Year        int      `query:"year" validate:"omitempty,min=2020,max=2030"`
	PharmacyIDs []string `query:"pharmacyIds" validate:"max=100,dive,uuid"`
	BrandLabs   []string `query:"brandLabs" validate:"max=50,dive,min=1,max=100"`
}

type topParams struct {
	View        string   `query:"viewType" validate:"oneof=products laboratories categories"`
	SortBy      string   `query:"sortBy" validate:"oneof=quantity ca_ttc marge"`
	Limit       int      `query:"limit" validate:"min=1,max=500"`
	Year        int      `query:"year" validate:"min=2020,max=2030"`
	Month       int      `query:"month" validate:"min=0,max=12"`
	PharmacyIDs []string `query:"pharmacyIds" validate:"max=100,dive,uuid"`
	BrandLabs   []string `query:"brandLabs" validate:"max=50,dive,min=1,max=100"`
}

type filterSummary struct {
	PharmacyIDs []string `json:"pharmacyIds"`
	BrandLabs   []string `json:"brandLabs"`
	Count       int      `json:"count"`
}

type kpiResponse struct {
	Success       bool                  `json:"success"`
	Data          map[string]kpi.Result `json:"data"`
	ExecutionTime int64                 `json:"executionTime"`
	Filters       filterSummary         `json:"filters"`
	Periods       period.Resolution     `json:"periods"`
}

type evolutionResponse struct {
	Success       bool                   `json:"success"`
	Data          []analytics.ChartPoint `json:"data"`
	Mode          period.Granularity     `json:"mode"`
	Insights      kpi.Insights           `json:"insights"`
	ExecutionTime int64                  `json:"executionTime"`
	Filters       filterSummary          `json:"filters"`
	Periods       period.Resolution      `json:"periods"`
}

type topMetadata struct {
	ViewType string        `json:"viewType"`
	SortBy   string        `json:"sortBy"`
	Limit    int           `json:"limit"`
	Year     int           `json:"year"`
	Month    int           `json:"month,omitempty"`
	Count    int           `json:"count"`
	Filters  filterSummary `json:"filters"`
}

type topResponse struct {
	Success       bool               `json:"success"`
	Data          []analytics.TopRow `json:"data"`
	ExecutionTime int64              `json:"executionTime"`
	Metadata      topMetadata        `json:"metadata"`
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	req, err := h.parseDashboard(r)
	if err != nil {
		httpx.Fail(w, r, h.logger, "kpis", err)
		return
	}
	report, err := h.service.KPIs(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "kpis", err)
		return
	}
	httpx.OK(w, kpiResponse{
		Success:       true,
		Data:          report.KPIs,
		ExecutionTime: h.now().Sub(start).Milliseconds(),
		Filters:       summarize(req.Filters),
		Periods:       req.Periods,
	})
}

func (h *Handler) handleEvolution(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	req, err := h.parseDashboard(r)
	if err != nil {
		httpx.Fail(w, r, h.logger, "evolution", err)
		return
	}
	report, err := h.service.Evolution(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "evolution", err)
		return
	}
	httpx.OK(w, evolutionResponse{
		Success:       true,
		Data:          report.Points,
		Mode:          report.Mode,
		Insights:      report.Insights,
		ExecutionTime: h.now().Sub(start).Milliseconds(),
		Filters:       summarize(req.Filters),
		Periods:       req.Periods,
	})
}

func (h *Handler) handleTop(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	req, err := h.parseTop(r)
	if err != nil {
		httpx.Fail(w, r, h.logger, "top", err)
		return
	}
	rows, err := h.service.Top(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "top", err)
		return
	}
	httpx.OK(w, topResponse{
		Success:       true,
		Data:          rows,
		ExecutionTime: h.now().Sub(start).Milliseconds(),
		Metadata: topMetadata{
			ViewType: string(req.View),
			SortBy:   string(req.SortBy),
			Limit:    req.Limit,
			Year:     req.Year,
			Month:    req.Month,
			Count:    len(rows),
			Filters:  summarize(req.Filters),
		},
	})
}

func (h *Handler) handleEvolutionCSV(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseDashboard(r)
	if err != nil {
		httpx.Fail(w, r, h.logger, "evolution export", err)
		return
	}

	var (
		kpis      analytics.KPIReport
		evolution analytics.EvolutionReport
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		kpis, err = h.service.KPIs(gctx, req)
		return err
	})
	g.Go(func() (err error) {
		evolution, err = h.service.Evolution(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		httpx.Fail(w, r, h.logger, "evolution export", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteKPICSV(buf, kpis, req.Periods.Analysis.Label, req.Periods.Comparison.Label); err != nil {
		httpx.Fail(w, r, h.logger, "write kpi csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteEvolutionCSV(buf, evolution); err != nil {
		httpx.Fail(w, r, h.logger, "write evolution csv", err)
		return
	}

	rng := req.Periods.Analysis.Range
	filename := fmt.Sprintf("pharmalytics-evolution-%s_%s.csv", rng.Start, rng.End)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

var topTitles = map[query.ViewType]string{
	query.ViewProducts:     "Top produits",
	query.ViewLaboratories: "Top laboratoires",
	query.ViewCategories:   "Top catégories",
}

func (h *Handler) handleTopXLSX(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseTop(r)
	if err != nil {
		httpx.Fail(w, r, h.logger, "top export", err)
		return
	}
	rows, err := h.service.Top(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "top export", err)
		return
	}

	stamp := fmt.Sprintf("%d", req.Year)
	if req.Month > 0 {
		stamp = fmt.Sprintf("%d-%02d", req.Year, req.Month)
	}
	buf := &bytes.Buffer{}
	sheet := export.TopSheet{Title: topTitles[req.View] + " " + stamp, SortBy: string(req.SortBy), Rows: rows}
	if err := export.WriteTopXLSX(buf, sheet); err != nil {
		httpx.Fail(w, r, h.logger, "write top xlsx", err)
		return
	}

	filename := fmt.Sprintf("pharmalytics-top-%s-%s.xlsx", req.View, stamp)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream xlsx", slog.Any("error", err))
	}
}

// parseDashboard authenticates, validates and scopes a KPI or evolution
// request. Every malformed parameter is reported at once.
func (h *Handler) parseDashboard(r *http.Request) (analytics.Request, error) {
	policy, err := h.policy(r)
	if err != nil {
		return analytics.Request{}, err
	}

	verr := &shared.ValidationError{}
	params := filterParams{
		Year:        httpx.Int(r, verr, "year", 0),
		PharmacyIDs: httpx.List(r, "pharmacyIds"),
		BrandLabs:   httpx.List(r, "brandLabs"),
	}
	verr.Merge(httpx.Validate(h.validate, params))

	q := r.URL.Query()
	res, err := h.resolver.Resolve(period.Request{
		AnalysisType:    q.Get("analysisType"),
		ComparisonType:  q.Get("comparisonType"),
		AnalysisStart:   q.Get("analysisPeriodStart"),
		AnalysisEnd:     q.Get("analysisPeriodEnd"),
		ComparisonStart: q.Get("comparisonPeriodStart"),
		ComparisonEnd:   q.Get("comparisonPeriodEnd"),
		Year:            params.Year,
	})
	verr.Merge(err)
	if err := verr.Err(); err != nil {
		return analytics.Request{}, err
	}

	filters, err := policy.Apply(toFilters(params.PharmacyIDs, params.BrandLabs))
	if err != nil {
		return analytics.Request{}, err
	}
	return analytics.Request{Periods: res, Filters: filters}, nil
}

func (h *Handler) parseTop(r *http.Request) (query.TopRequest, error) {
	policy, err := h.policy(r)
	if err != nil {
		return query.TopRequest{}, err
	}

	verr := &shared.ValidationError{}
	params := topParams{
		View:        strings.TrimSpace(r.URL.Query().Get("viewType")),
		SortBy:      strings.TrimSpace(r.URL.Query().Get("sortBy")),
		Limit:       httpx.Int(r, verr, "limit", defaultTopLimit),
		Year:        httpx.Int(r, verr, "year", h.resolver.DefaultYear),
		Month:       httpx.Int(r, verr, "month", 0),
		PharmacyIDs: httpx.List(r, "pharmacyIds"),
		BrandLabs:   httpx.List(r, "brandLabs"),
	}
	if params.View == "" {
		params.View = string(query.ViewProducts)
	}
	if params.SortBy == "" {
		params.SortBy = string(query.SortQuantity)
	}
	verr.Merge(httpx.Validate(h.validate, params))
	if err := verr.Err(); err != nil {
		return query.TopRequest{}, err
	}

	filters, err := policy.Apply(toFilters(params.PharmacyIDs, params.BrandLabs))
	if err != nil {
		return query.TopRequest{}, err
	}
	return query.TopRequest{
		View:    query.ViewType(params.View),
		SortBy:  query.SortKey(params.SortBy),
		Limit:   params.Limit,
		Year:    params.Year,
		Month:   params.Month,
		Filters: filters,
	}, nil
}

func (h *Handler) policy(r *http.Request) (scope.Policy, error) {
	return scope.Resolve(shared.PrincipalFromContext(r.Context()))
}

// toFilters converts already validated parameters. Duplicates are dropped.
func toFilters(pharmacyIDs, brandLabs []string) query.Filters {
	var f query.Filters
	seen := make(map[uuid.UUID]struct{}, len(pharmacyIDs))
	for _, raw := range pharmacyIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		f.PharmacyIDs = append(f.PharmacyIDs, id)
	}
	labs := make(map[string]struct{}, len(brandLabs))
	for _, lab := range brandLabs {
		if _, dup := labs[lab]; dup {
			continue
		}
		labs[lab] = struct{}{}
		f.BrandLabs = append(f.BrandLabs, lab)
	}
	return f
}

func summarize(f query.Filters) filterSummary {
	s := filterSummary{
		PharmacyIDs: f.PharmacyStrings(),
		BrandLabs:   f.BrandLabs,
		Count:       f.Count(),
	}
	if s.PharmacyIDs == nil {
		s.PharmacyIDs = []string{}
	}
	if s.BrandLabs == nil {
		s.BrandLabs = []string{}
	}
	return s
}
