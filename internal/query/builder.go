package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/pharmalytics/pharmalytics/internal/period"
)

// Statement is a rendered SQL string with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Fact sources, one materialized view per flow.
const (
	SellInView  = "mv_sell_in_monthly"
	SellOutView = "mv_sell_out_monthly"
	StockView   = "mv_stock_monthly"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// factsCTE joins the three per-key sources and sums them per calendar month.
// Any source may be missing a key, hence the full outer joins on coalesced keys.
const factsCTE = `facts AS (
	SELECT COALESCE(si.year, so.year, st.year) AS year,
		COALESCE(si.month, so.month, st.month) AS month,
		si.sell_in, so.sell_out, st.stock
	FROM sell_in si
	FULL OUTER JOIN sell_out so
		ON so.year = si.year AND so.month = si.month
		AND so.pharmacy_id = si.pharmacy_id AND so.brand_lab IS NOT DISTINCT FROM si.brand_lab
	FULL OUTER JOIN stock st
		ON st.year = COALESCE(si.year, so.year) AND st.month = COALESCE(si.month, so.month)
		AND st.pharmacy_id = COALESCE(si.pharmacy_id, so.pharmacy_id)
		AND st.brand_lab IS NOT DISTINCT FROM COALESCE(si.brand_lab, so.brand_lab)
), monthly AS (
	SELECT year, month, SUM(sell_in) AS sell_in, SUM(sell_out) AS sell_out, SUM(stock) AS stock
	FROM facts
	GROUP BY year, month
)`

// SeriesQuery returns one row per bucket of r holding summed sell-in and
// sell-out and the average monthly stock. Buckets without any data are absent;
// metrics without data in a present bucket are NULL.
func SeriesQuery(r period.DateRange, f Filters, g period.Granularity) (Statement, error) {
	bucket := "month"
	if g == period.Quarterly {
		bucket = "CEIL(month / 3.0)::int"
	}
	b := psql.
		Select(
			"year",
			bucket+" AS bucket",
			"SUM(sell_in)::float8 AS sell_in",
			"SUM(sell_out)::float8 AS sell_out",
			"AVG(stock)::float8 AS stock",
		).
		PrefixExpr(withFacts(r, f)).
		From("monthly").
		GroupBy("year", "bucket").
		OrderBy("year", "bucket")
	return render(b)
}

// TotalsQuery collapses r into one row. Stock is averaged over the months that
// carry a stock value.
func TotalsQuery(r period.DateRange, f Filters) (Statement, error) {
	b := psql.
		Select(
			"COALESCE(SUM(sell_in), 0)::float8 AS sell_in",
			"COALESCE(SUM(sell_out), 0)::float8 AS sell_out",
			"COALESCE(AVG(stock), 0)::float8 AS stock",
			"COUNT(*) AS months_with_data",
		).
		PrefixExpr(withFacts(r, f)).
		From("monthly")
	return render(b)
}

func withFacts(r period.DateRange, f Filters) sq.Sqlizer {
	span := MonthSpan(r.Start.MonthIndex(), r.End.MonthIndex())
	source := func(view, measure, alias string) sq.SelectBuilder {
		b := sq.Select("year", "month", "pharmacy_id", "brand_lab", fmt.Sprintf("SUM(%s) AS %s", measure, alias)).
			From(view)
		b = Apply(b, append([]Predicate{span}, f.predicates(true)...)...)
		return b.GroupBy("year", "month", "pharmacy_id", "brand_lab")
	}
	return sq.Expr(
		"WITH sell_in AS (?), sell_out AS (?), stock AS (?), "+factsCTE,
		source(SellInView, "ca_ht", "sell_in"),
		source(SellOutView, "ca_ttc", "sell_out"),
		source(StockView, "montant_valorise_achat", "stock"),
	)
}

func render(b sq.SelectBuilder) (Statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("query: render: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}
