package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmalytics/pharmalytics/internal/kpi"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

type mockRepo struct {
	mu          sync.Mutex
	totals      map[int]kpi.Totals
	totalsErr   error
	totalsCalls int
	series      []SeriesRow
	seriesCalls int
	top         []TopRow
	block       bool
	filters     []query.Filters
}

func (m *mockRepo) Totals(ctx context.Context, r period.DateRange, f query.Filters) (kpi.Totals, error) {
	m.mu.Lock()
	m.totalsCalls++
	m.filters = append(m.filters, f)
	err := m.totalsErr
	t := m.totals[r.Start.Year]
	block := m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return kpi.Totals{}, ctx.Err()
	}
	t.Months = period.MonthsDiff(r)
	return t, err
}

func (m *mockRepo) Series(ctx context.Context, r period.DateRange, f query.Filters, g period.Granularity) ([]SeriesRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seriesCalls++
	return m.series, nil
}

func (m *mockRepo) Top(ctx context.Context, req query.TopRequest) ([]TopRow, error) {
	return m.top, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute, nil, nil), nil, nil)
}

func resolve(t *testing.T, req period.Request) period.Resolution {
	t.Helper()
	res, err := period.NewResolver(2025).Resolve(req)
	require.NoError(t, err)
	return res
}

func ptr(v float64) *float64 { return &v }

func TestEvolutionFirstQuarterMonthly(t *testing.T) {
	repo := &mockRepo{
		totals: map[int]kpi.Totals{2025: {SellIn: 300, SellOut: 450, Stock: 120}},
		series: []SeriesRow{
			{Year: 2025, Bucket: 1, SellIn: ptr(100), SellOut: ptr(150), Stock: ptr(120)},
			{Year: 2025, Bucket: 3, SellOut: ptr(300)},
		},
	}
	svc := newTestService(t, repo)
	req := Request{Periods: resolve(t, period.Request{AnalysisStart: "2025-01-01", AnalysisEnd: "2025-03-31"})}

	report, err := svc.Evolution(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, period.Monthly, report.Mode)
	require.Len(t, report.Points, 3)
	assert.Equal(t, []string{"Janv", "Févr", "Mars"}, []string{report.Points[0].Period, report.Points[1].Period, report.Points[2].Period})
	assert.Equal(t, 50.0, *report.Points[0].Marge)
	assert.Nil(t, report.Points[1].SellOut)
	assert.Nil(t, report.Points[1].SellIn)
	assert.Nil(t, report.Points[2].Marge, "margin needs both flows")
	for _, p := range report.Points {
		if p.SellOut != nil {
			assert.GreaterOrEqual(t, *p.SellOut, 0.0)
		}
	}
}

func TestKPIsYearOverYearForOnePharmacy(t *testing.T) {
	pharmacy := uuid.MustParse("0b8c8d7e-3c1f-4c55-9a3e-5d0f1e2a7b01")
	repo := &mockRepo{totals: map[int]kpi.Totals{
		2025: {SellIn: 800_000, SellOut: 1_100_000, Stock: 150_000},
		2024: {SellIn: 750_000, SellOut: 1_000_000, Stock: 160_000},
	}}
	svc := newTestService(t, repo)
	req := Request{
		Periods: resolve(t, period.Request{}),
		Filters: query.Filters{PharmacyIDs: []uuid.UUID{pharmacy}},
	}

	report, err := svc.KPIs(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, kpi.TrendPositive, report.KPIs["ca_sellout"].Trend)
	assert.InDelta(t, 10.0, report.KPIs["ca_sellout"].EvolutionPct, 1e-9)
	assert.Equal(t, 2025, req.Periods.Analysis.Range.Start.Year)
	for _, f := range repo.filters {
		assert.Equal(t, []uuid.UUID{pharmacy}, f.PharmacyIDs)
	}

	repo.totals[2024] = kpi.Totals{SellOut: 1_200_000}
	require.NoError(t, svc.Cache().Bump(context.Background()))
	report, err = svc.KPIs(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, kpi.TrendNegative, report.KPIs["ca_sellout"].Trend)
}

func TestKPIsAreCached(t *testing.T) {
	repo := &mockRepo{totals: map[int]kpi.Totals{2025: {SellOut: 10}, 2024: {SellOut: 5}}}
	svc := newTestService(t, repo)
	req := Request{Periods: resolve(t, period.Request{})}

	_, err := svc.KPIs(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.KPIs(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.totalsCalls)

	permuted := req
	permuted.Filters = query.Filters{BrandLabs: []string{"UPSA", "SANOFI"}}
	same := req
	same.Filters = query.Filters{BrandLabs: []string{"SANOFI", "UPSA"}}
	_, err = svc.KPIs(context.Background(), permuted)
	require.NoError(t, err)
	_, err = svc.KPIs(context.Background(), same)
	require.NoError(t, err)
	assert.Equal(t, 4, repo.totalsCalls)
}

func TestFailuresAreNotCached(t *testing.T) {
	repo := &mockRepo{totals: map[int]kpi.Totals{2025: {SellOut: 10}}, totalsErr: errors.New("connection refused")}
	svc := newTestService(t, repo)
	req := Request{Periods: resolve(t, period.Request{})}

	_, err := svc.KPIs(context.Background(), req)
	var upstream *shared.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.False(t, shared.IsTimeout(err))

	repo.mu.Lock()
	repo.totalsErr = nil
	repo.mu.Unlock()
	report, err := svc.KPIs(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, report.Current.SellOut)
}

func TestSlowQueryBecomesTimeout(t *testing.T) {
	repo := &mockRepo{block: true}
	svc := newTestService(t, repo)
	svc.timeout = func(int, int, int) time.Duration { return 20 * time.Millisecond }

	_, err := svc.KPIs(context.Background(), Request{Periods: resolve(t, period.Request{})})
	require.Error(t, err)
	assert.True(t, shared.IsTimeout(err))

	var timeout *shared.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 20*time.Millisecond, timeout.Limit)
}

func TestStatementTimeoutBecomesTimeout(t *testing.T) {
	repo := &mockRepo{totalsErr: &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}}
	svc := newTestService(t, repo)

	_, err := svc.KPIs(context.Background(), Request{Periods: resolve(t, period.Request{})})
	require.Error(t, err)
	assert.True(t, shared.IsTimeout(err))
}

func TestTopReturnsEmptySlice(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, nil, nil)
	rows, err := svc.Top(context.Background(), query.TopRequest{View: query.ViewProducts, SortBy: query.SortQuantity, Limit: 10, Year: 2025})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestShapeSeriesQuarterlyAcrossYears(t *testing.T) {
	r := period.DateRange{Start: period.NewDate(2024, 10, 1), End: period.NewDate(2025, 12, 31)}
	buckets := period.Buckets(r, period.Quarterly)
	points := ShapeSeries(buckets, []SeriesRow{{Year: 2025, Bucket: 1, SellOut: ptr(42)}})

	require.Len(t, points, 5)
	assert.Equal(t, "Q4 24", points[0].Period)
	assert.Equal(t, "Q1 25", points[1].Period)
	assert.Nil(t, points[0].SellOut)
	assert.Equal(t, 42.0, *points[1].SellOut)
}
