package query

import "fmt"

// SearchField selects the product column a search matches against.
type SearchField string

// Product search fields.
const (
	SearchByName SearchField = "name"
	SearchByCode SearchField = "code"
)

// ProductSearchQuery matches products_catalog rows. like is a ready LIKE
// pattern; escaping user input is the caller's job.
func ProductSearchQuery(field SearchField, like string, limit int) (Statement, error) {
	var pred Predicate
	switch field {
	case SearchByName:
		pred = Predicate{Column: "name", Operator: OpILike, Value: like}
	case SearchByCode:
		pred = Predicate{Column: "code_13_ref", Operator: OpLike, Value: like}
	default:
		return Statement{}, fmt.Errorf("query: unknown search field %q", field)
	}
	b := psql.
		Select("code_13_ref", "name", "brand_lab", "category").
		From("products_catalog").
		Where(pred).
		OrderBy("name", "code_13_ref").
		Limit(uint64(limit))
	return render(b)
}

// LaboratorySearchQuery lists laboratories whose name matches like.
func LaboratorySearchQuery(like string, limit int) (Statement, error) {
	b := psql.
		Select("brand_lab", "COUNT(*) AS product_count").
		From("products_catalog").
		Where(Predicate{Column: "brand_lab", Operator: OpILike, Value: like}).
		GroupBy("brand_lab").
		OrderBy("brand_lab").
		Limit(uint64(limit))
	return render(b)
}

// PharmacyListQuery returns the whole pharmacy directory.
func PharmacyListQuery() (Statement, error) {
	b := psql.
		Select("id", "name", "city", "area", "COALESCE(ca, 0)::float8 AS ca", "COALESCE(employees_count, 0) AS employees_count").
		From("pharmacies").
		OrderBy("name")
	return render(b)
}
