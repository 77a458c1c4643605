package analytics

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmalytics/pharmalytics/internal/kpi"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
)

// Repository runs the aggregate queries behind the dashboard.
type Repository interface {
	Totals(ctx context.Context, r period.DateRange, f query.Filters) (kpi.Totals, error)
	Series(ctx context.Context, r period.DateRange, f query.Filters, g period.Granularity) ([]SeriesRow, error)
	Top(ctx context.Context, req query.TopRequest) ([]TopRow, error)
}

// SeriesRow is one bucket as returned by the database. Nil metrics had no rows.
type SeriesRow struct {
	Year    int      `db:"year"`
	Bucket  int      `db:"bucket"`
	SellIn  *float64 `db:"sell_in"`
	SellOut *float64 `db:"sell_out"`
	Stock   *float64 `db:"stock"`
}

// TopRow is one ranked line of a breakdown.
type TopRow struct {
	Key           string   `db:"key" json:"key"`
	Name          string   `db:"name" json:"name"`
	BrandLab      *string  `db:"brand_lab" json:"brandLab"`
	Category      *string  `db:"category" json:"category"`
	ProductCount  int64    `db:"product_count" json:"productCount"`
	PharmacyCount int64    `db:"pharmacy_count" json:"pharmacyCount"`
	Quantity      float64  `db:"quantity" json:"quantity"`
	CaTTC         float64  `db:"ca_ttc" json:"caTtc"`
	Marge         float64  `db:"marge" json:"marge"`
	AvgPrice      *float64 `db:"avg_price" json:"avgPrice"`
}

type totalsRow struct {
	SellIn         float64 `db:"sell_in"`
	SellOut        float64 `db:"sell_out"`
	Stock          float64 `db:"stock"`
	MonthsWithData int64   `db:"months_with_data"`
}

// PGRepository reads the materialized views through pgxpool.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Totals sums r into one kpi.Totals. Months is the calendar span of r.
func (r *PGRepository) Totals(ctx context.Context, rng period.DateRange, f query.Filters) (kpi.Totals, error) {
	stmt, err := query.TotalsQuery(rng, f)
	if err != nil {
		return kpi.Totals{}, err
	}
	var row totalsRow
	if err := pgxscan.Get(ctx, r.pool, &row, stmt.SQL, stmt.Args...); err != nil {
		return kpi.Totals{}, fmt.Errorf("totals: %w", err)
	}
	return kpi.Totals{
		SellIn:  row.SellIn,
		SellOut: row.SellOut,
		Stock:   row.Stock,
		Months:  period.MonthsDiff(rng),
	}, nil
}

// Series returns the non-empty buckets of rng in chronological order.
func (r *PGRepository) Series(ctx context.Context, rng period.DateRange, f query.Filters, g period.Granularity) ([]SeriesRow, error) {
	stmt, err := query.SeriesQuery(rng, f, g)
	if err != nil {
		return nil, err
	}
	var rows []SeriesRow
	if err := pgxscan.Select(ctx, r.pool, &rows, stmt.SQL, stmt.Args...); err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}
	return rows, nil
}

// Top returns the ranked breakdown rows.
func (r *PGRepository) Top(ctx context.Context, req query.TopRequest) ([]TopRow, error) {
	stmt, err := query.TopQuery(req)
	if err != nil {
		return nil, err
	}
	var rows []TopRow
	if err := pgxscan.Select(ctx, r.pool, &rows, stmt.SQL, stmt.Args...); err != nil {
		return nil, fmt.Errorf("top %s: %w", req.View, err)
	}
	return rows, nil
}
