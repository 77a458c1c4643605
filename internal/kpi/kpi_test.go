package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvolutionPct(t *testing.T) {
	assert.InDelta(t, 10, EvolutionPct(110, 100), 1e-9)
	assert.InDelta(t, -10, EvolutionPct(90, 100), 1e-9)
	for _, x := range []float64{0, 1, -5, 1e9} {
		assert.Equal(t, float64(0), EvolutionPct(x, 0))
	}
}

func TestTrendOf(t *testing.T) {
	assert.Equal(t, TrendPositive, TrendOf(2, 1))
	assert.Equal(t, TrendNegative, TrendOf(1, 2))
	assert.Equal(t, TrendNeutral, TrendOf(3, 3))
}

func TestMarginIdentity(t *testing.T) {
	assert.Equal(t, float64(50), GrossMargin(150, 100))
	assert.Equal(t, float64(50), MarginPct(150, 100))
	assert.Equal(t, float64(0), MarginPct(150, 0))
}

func TestRotationAndCoverageGuardZero(t *testing.T) {
	assert.Equal(t, float64(0), Rotation(1000, 0))
	assert.Equal(t, float64(0), CoverageDays(5000, 0, 12))
	assert.Equal(t, float64(4), Rotation(400, 100))
	// 12000 sold over 12 months is 1000 per month; 3000 of stock lasts 3 months.
	assert.InDelta(t, 90, CoverageDays(3000, 12000, 12), 1e-9)
}

func TestFormatCurrency(t *testing.T) {
	cases := map[float64]string{
		1_500_000:  "1.5M €",
		1_500:      "2K €",
		500:        "500 €",
		999.6:      "1K €",
		999.4:      "999 €",
		999_999.6:  "1.0M €",
		999_499:    "999K €",
		950_000:    "950K €",
		-999_700:   "-1.0M €",
		0:          "0 €",
		-2_340:     "-2K €",
		12_345_678: "12.3M €",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatCurrency(in), in)
	}
}

func TestFormatPercentIsSigned(t *testing.T) {
	assert.Equal(t, "+10.0%", FormatPercent(10))
	assert.Equal(t, "-10.0%", FormatPercent(-10))
	assert.Equal(t, "0.0%", FormatPercent(0))
	assert.Equal(t, "+0.1%", FormatPercent(0.05))
}

func TestBuildDerivesAllCards(t *testing.T) {
	cur := Totals{SellIn: 100_000, SellOut: 150_000, Stock: 50_000, Months: 12}
	prev := Totals{SellIn: 100_000, SellOut: 120_000, Stock: 60_000, Months: 12}
	cards := Build(cur, prev)

	assert.Len(t, cards, 6)
	assert.Equal(t, TrendNeutral, cards["ca_sellin"].Trend)
	assert.Equal(t, "+25.0%", cards["ca_sellout"].Evolution)
	assert.Equal(t, TrendPositive, cards["ca_sellout"].Trend)
	assert.Equal(t, float64(50_000), cards["marge_brute"].RawValue)
	assert.Equal(t, "Marge brute (50.0%)", cards["marge_brute"].Label)
	assert.Equal(t, "+150.0%", cards["marge_brute"].Evolution)

	// rotation 3.0 vs 2.0: absolute delta, not a percentage
	assert.Equal(t, "3.0x/an", cards["rotation_stock"].Value)
	assert.Equal(t, "+1.0", cards["rotation_stock"].Evolution)
	assert.Equal(t, float64(1), cards["rotation_stock"].EvolutionPct)

	// coverage 120 days vs 180 days
	assert.Equal(t, "120 jours", cards["couverture_stock"].Value)
	assert.Equal(t, "-60 j", cards["couverture_stock"].Evolution)
	assert.Equal(t, TrendNegative, cards["couverture_stock"].Trend)
}

func TestBuildInsights(t *testing.T) {
	in := BuildInsights(Totals{SellIn: 110, SellOut: 180, Stock: 50}, Totals{SellIn: 100, SellOut: 150, Stock: 0})
	assert.Equal(t, Insights{GrowthSellIn: "+10.0%", GrowthSellOut: "+20.0%", GrowthMargin: "+40.0%", GrowthStock: "0.0%"}, in)
}
