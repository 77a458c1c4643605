// Package kpi derives dashboard indicators from raw period sums.
package kpi

import "math"

// Trend is the direction of a metric between two periods.
type Trend string

// Trend directions.
const (
	TrendPositive Trend = "positive"
	TrendNegative Trend = "negative"
	TrendNeutral  Trend = "neutral"
)

// Result is one KPI card.
type Result struct {
	Value        string  `json:"value"`
	RawValue     float64 `json:"rawValue"`
	Evolution    string  `json:"evolution"`
	EvolutionPct float64 `json:"evolutionPct"`
	Trend        Trend   `json:"trend"`
	Label        string  `json:"label"`
}

// Totals are the raw sums of one period.
type Totals struct {
	SellIn  float64 `json:"sellIn"`
	SellOut float64 `json:"sellOut"`
	Stock   float64 `json:"stock"`
	Months  int     `json:"months"`
}

// EvolutionPct is the relative change from prev to cur, 0 when prev is 0.
func EvolutionPct(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// TrendOf compares cur with prev.
func TrendOf(cur, prev float64) Trend {
	switch {
	case cur > prev:
		return TrendPositive
	case cur < prev:
		return TrendNegative
	default:
		return TrendNeutral
	}
}

// GrossMargin is sell-out minus sell-in.
func GrossMargin(sellOut, sellIn float64) float64 {
	return sellOut - sellIn
}

// MarginPct is the gross margin relative to sell-in.
func MarginPct(sellOut, sellIn float64) float64 {
	if sellIn <= 0 {
		return 0
	}
	return GrossMargin(sellOut, sellIn) / sellIn * 100
}

// Rotation is how many times the stock value was sold through.
func Rotation(sellOut, stock float64) float64 {
	if stock <= 0 {
		return 0
	}
	return sellOut / stock
}

// CoverageDays is how many days the stock lasts at the average monthly sell-out.
func CoverageDays(stock, sellOut float64, months int) float64 {
	if sellOut <= 0 || months <= 0 {
		return 0
	}
	return stock / (sellOut / float64(months)) * 30
}

// Amount builds a currency KPI with a percentage evolution.
func Amount(label string, cur, prev float64) Result {
	pct := EvolutionPct(cur, prev)
	return Result{
		Value:        FormatCurrency(cur),
		RawValue:     cur,
		Evolution:    FormatPercent(pct),
		EvolutionPct: pct,
		Trend:        TrendOf(cur, prev),
		Label:        label,
	}
}

// Build derives the six dashboard KPIs from both periods.
func Build(cur, prev Totals) map[string]Result {
	margin := GrossMargin(cur.SellOut, cur.SellIn)
	prevMargin := GrossMargin(prev.SellOut, prev.SellIn)
	marginCard := Amount("Marge brute", margin, prevMargin)
	marginCard.Label = "Marge brute (" + FormatShare(MarginPct(cur.SellOut, cur.SellIn)) + ")"

	rotation := Rotation(cur.SellOut, cur.Stock)
	prevRotation := Rotation(prev.SellOut, prev.Stock)
	rotationDelta := rotation - prevRotation

	coverage := CoverageDays(cur.Stock, cur.SellOut, cur.Months)
	prevCoverage := CoverageDays(prev.Stock, prev.SellOut, prev.Months)
	coverageDelta := coverage - prevCoverage

	return map[string]Result{
		"ca_sellin":      Amount("CA Sell-in", cur.SellIn, prev.SellIn),
		"ca_sellout":     Amount("CA Sell-out", cur.SellOut, prev.SellOut),
		"marge_brute":    marginCard,
		"stock_valorise": Amount("Stock valorisé", cur.Stock, prev.Stock),
		"rotation_stock": {
			Value:        FormatRotation(rotation),
			RawValue:     rotation,
			Evolution:    FormatDelta(rotationDelta, 1, ""),
			EvolutionPct: round(rotationDelta, 2),
			Trend:        TrendOf(rotation, prevRotation),
			Label:        "Rotation stock",
		},
		"couverture_stock": {
			Value:        FormatDays(coverage),
			RawValue:     coverage,
			Evolution:    FormatDelta(coverageDelta, 0, " j"),
			EvolutionPct: round(coverageDelta, 0),
			Trend:        TrendOf(coverage, prevCoverage),
			Label:        "Couverture stock",
		},
	}
}

// Insights summarises the growth of each metric as signed percentages.
type Insights struct {
	GrowthSellIn  string `json:"growthSellIn"`
	GrowthSellOut string `json:"growthSellOut"`
	GrowthMargin  string `json:"growthMargin"`
	GrowthStock   string `json:"growthStock"`
}

// BuildInsights compares the analysis totals with the comparison totals.
func BuildInsights(cur, prev Totals) Insights {
	return Insights{
		GrowthSellIn:  FormatPercent(EvolutionPct(cur.SellIn, prev.SellIn)),
		GrowthSellOut: FormatPercent(EvolutionPct(cur.SellOut, prev.SellOut)),
		GrowthMargin:  FormatPercent(EvolutionPct(GrossMargin(cur.SellOut, cur.SellIn), GrossMargin(prev.SellOut, prev.SellIn))),
		GrowthStock:   FormatPercent(EvolutionPct(cur.Stock, prev.Stock)),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
