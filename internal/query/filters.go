package query

import (
	"github.com/google/uuid"
)

// Filters restrict the pharmacies and laboratories an aggregate covers. Empty
// slices mean no restriction.
type Filters struct {
	PharmacyIDs []uuid.UUID `json:"pharmacyIds"`
	BrandLabs   []string    `json:"brandLabs"`
}

// Count is the number of filter values in use.
func (f Filters) Count() int {
	return len(f.PharmacyIDs) + len(f.BrandLabs)
}

// PharmacyStrings renders the pharmacy IDs as text.
func (f Filters) PharmacyStrings() []string {
	if len(f.PharmacyIDs) == 0 {
		return nil
	}
	out := make([]string, len(f.PharmacyIDs))
	for i, id := range f.PharmacyIDs {
		out[i] = id.String()
	}
	return out
}

func (f Filters) predicates(withBrandLab bool) []Predicate {
	preds := []Predicate{AnyOf("pharmacy_id", f.PharmacyIDs, "uuid[]")}
	if withBrandLab {
		preds = append(preds, AnyOf("brand_lab", f.BrandLabs, "text[]"))
	}
	return preds
}
