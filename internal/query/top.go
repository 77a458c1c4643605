package query

import (
	"fmt"
)

// ViewType selects the dimension of a top-N breakdown.
type ViewType string

// Breakdown dimensions.
const (
	ViewProducts     ViewType = "products"
	ViewLaboratories ViewType = "laboratories"
	ViewCategories   ViewType = "categories"
)

// SortKey selects the ranking measure of a top-N breakdown.
type SortKey string

// Ranking measures.
const (
	SortQuantity SortKey = "quantity"
	SortRevenue  SortKey = "ca_ttc"
	SortMargin   SortKey = "marge"
)

// MaxTopLimit bounds the number of rows a breakdown returns.
const MaxTopLimit = 500

// TopRequest describes one breakdown. Month 0 covers the whole year.
type TopRequest struct {
	View    ViewType
	SortBy  SortKey
	Limit   int
	Year    int
	Month   int
	Filters Filters
}

type topView struct {
	table    string
	key      string
	columns  []string
	brandLab bool
}

var topViews = map[ViewType]topView{
	ViewProducts: {
		table: "mv_top_products_monthly",
		key:   "code_13_ref",
		columns: []string{
			"code_13_ref AS key",
			"COALESCE(MAX(product_name), code_13_ref) AS name",
			"MAX(brand_lab) AS brand_lab",
			"MAX(category) AS category",
			"1 AS product_count",
		},
		brandLab: true,
	},
	ViewLaboratories: {
		table: "mv_top_laboratories_monthly",
		key:   "brand_lab",
		columns: []string{
			"COALESCE(brand_lab, '') AS key",
			"COALESCE(brand_lab, '') AS name",
			"brand_lab",
			"NULL::text AS category",
			"COALESCE(MAX(product_count), 0) AS product_count",
		},
		brandLab: true,
	},
	ViewCategories: {
		table: "mv_top_categories_monthly",
		key:   "category",
		columns: []string{
			"COALESCE(category, '') AS key",
			"COALESCE(category, '') AS name",
			"NULL::text AS brand_lab",
			"category",
			"COALESCE(MAX(product_count), 0) AS product_count",
		},
	},
}

// Valid reports whether v names a known breakdown.
func (v ViewType) Valid() bool {
	_, ok := topViews[v]
	return ok
}

// Valid reports whether s names a ranking measure.
func (s SortKey) Valid() bool {
	switch s {
	case SortQuantity, SortRevenue, SortMargin:
		return true
	}
	return false
}

// AppliesBrandLabs reports whether the view can be filtered by laboratory.
func (v ViewType) AppliesBrandLabs() bool {
	return topViews[v].brandLab
}

// TopQuery ranks rows by the precomputed rank column of the sort measure, then
// re-aggregates them across the pharmacies in scope.
func TopQuery(req TopRequest) (Statement, error) {
	view, ok := topViews[req.View]
	if !ok {
		return Statement{}, fmt.Errorf("query: unknown view %q", req.View)
	}
	if !req.SortBy.Valid() {
		return Statement{}, fmt.Errorf("query: unknown sort key %q", req.SortBy)
	}
	if req.Limit <= 0 || req.Limit > MaxTopLimit {
		return Statement{}, fmt.Errorf("query: limit %d outside 1..%d", req.Limit, MaxTopLimit)
	}

	columns := append([]string{}, view.columns...)
	columns = append(columns,
		"COUNT(DISTINCT pharmacy_id) AS pharmacy_count",
		"COALESCE(SUM(quantity), 0)::float8 AS quantity",
		"COALESCE(SUM(ca_ttc), 0)::float8 AS ca_ttc",
		"COALESCE(SUM(marge), 0)::float8 AS marge",
	)
	if req.View == ViewProducts {
		columns = append(columns, "AVG(avg_price)::float8 AS avg_price")
	} else {
		columns = append(columns, "(SUM(ca_ttc) / NULLIF(SUM(quantity), 0))::float8 AS avg_price")
	}

	preds := []Predicate{
		Eq("year", req.Year),
		{Column: "rank_" + string(req.SortBy), Operator: OpLTE, Value: req.Limit},
	}
	if req.Month > 0 {
		preds = append(preds, Eq("month", req.Month))
	}
	preds = append(preds, req.Filters.predicates(view.brandLab)...)

	b := psql.Select(columns...).From(view.table)
	b = Apply(b, preds...).
		GroupBy(view.key).
		OrderBy(string(req.SortBy)+" DESC", "key").
		Limit(uint64(req.Limit))
	return render(b)
}
