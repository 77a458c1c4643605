package analytics

import "github.com/pharmalytics/pharmalytics/internal/period"

// ChartPoint is one bucket of the evolution chart. A nil metric means the
// bucket had no activity for it, which the UI renders differently from zero.
type ChartPoint struct {
	Period  string   `json:"period"`
	SellIn  *float64 `json:"sellIn"`
	SellOut *float64 `json:"sellOut"`
	Marge   *float64 `json:"marge"`
	Stock   *float64 `json:"stock"`
}

// ShapeSeries lays rows over the full bucket list so that every calendar
// bucket appears exactly once, in order.
func ShapeSeries(buckets []period.Bucket, rows []SeriesRow) []ChartPoint {
	byKey := make(map[string]SeriesRow, len(rows))
	for _, row := range rows {
		byKey[period.Bucket{Year: row.Year, Index: row.Bucket}.Key()] = row
	}
	points := make([]ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		point := ChartPoint{Period: b.Label}
		if row, ok := byKey[b.Key()]; ok {
			point.SellIn = row.SellIn
			point.SellOut = row.SellOut
			point.Stock = row.Stock
			if row.SellIn != nil && row.SellOut != nil {
				margin := *row.SellOut - *row.SellIn
				point.Marge = &margin
			}
		}
		points = append(points, point)
	}
	return points
}
