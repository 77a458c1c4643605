package kpi

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatCurrency renders euros compactly: "1.5M €", "2K €", "500 €".
// Rounding is half away from zero and independent of locale. The unit is
// chosen on the rounded amount, so 999.6 renders as "1K €".
func FormatCurrency(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case d.Div(thousand).Round(0).Abs().GreaterThanOrEqual(thousand):
		return d.Div(million).StringFixed(1) + "M €"
	case d.Round(0).Abs().GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(0) + "K €"
	default:
		return d.StringFixed(0) + " €"
	}
}

// FormatPercent renders a signed percentage with one decimal: "+10.0%".
func FormatPercent(pct float64) string {
	return signed(pct, 1) + "%"
}

// FormatShare renders an unsigned percentage with one decimal: "50.0%".
func FormatShare(pct float64) string {
	return decimal.NewFromFloat(pct).StringFixed(1) + "%"
}

// FormatRotation renders a yearly rotation: "2.4x/an".
func FormatRotation(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "x/an"
}

// FormatDays renders a day count: "45 jours".
func FormatDays(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(0) + " jours"
}

// FormatDelta renders an absolute signed change with the given precision and unit.
func FormatDelta(v float64, places int32, unit string) string {
	return signed(v, places) + unit
}

func signed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	d := decimal.NewFromFloat(v).Round(places)
	s := d.StringFixed(places)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}
