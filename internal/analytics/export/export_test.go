package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	"github.com/pharmalytics/pharmalytics/internal/kpi"
)

func TestWriteEvolutionCSVLeavesEmptyBucketsBlank(t *testing.T) {
	sellOut := 1500.0
	report := analytics.EvolutionReport{
		Points: []analytics.ChartPoint{
			{Period: "Janv", SellOut: &sellOut},
			{Period: "Févr"},
		},
		Insights: kpi.Insights{GrowthSellIn: "+1.0%", GrowthSellOut: "+2.0%", GrowthMargin: "0.0%", GrowthStock: "-3.0%"},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteEvolutionCSV(buf, report))

	reader := csv.NewReader(bytes.NewReader(buf.Bytes()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Janv", "", "1500.00", "", ""}, records[1])
	assert.Equal(t, []string{"Févr", "", "", "", ""}, records[2])
	assert.Equal(t, []string{"Croissance stock", "-3.0%"}, records[len(records)-1])
}

func TestWriteKPICSVFollowsCardOrder(t *testing.T) {
	report := analytics.KPIReport{KPIs: kpi.Build(kpi.Totals{SellIn: 100, SellOut: 150, Stock: 50, Months: 1}, kpi.Totals{})}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteKPICSV(buf, report, "01/01/2025 - 31/01/2025", "01/12/2024 - 31/12/2024"))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 9)
	assert.Equal(t, "01/01/2025 - 31/01/2025", records[1][1])
	assert.Equal(t, "100.00", records[3][2])
}

func TestWriteTopXLSX(t *testing.T) {
	lab := "SANOFI"
	buf := &bytes.Buffer{}
	require.NoError(t, WriteTopXLSX(buf, TopSheet{
		Title:  "Top produits 2025",
		SortBy: "quantity",
		Rows: []analytics.TopRow{
			{Key: "3400930000001", Name: "DOLIPRANE 1000MG", BrandLab: &lab, Quantity: 1200, CaTTC: 2400},
		},
	}))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	title, err := f.GetCellValue("Top", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Top produits 2025", title)
	name, err := f.GetCellValue("Top", "C5")
	require.NoError(t, err)
	assert.Equal(t, "DOLIPRANE 1000MG", name)
	labCell, err := f.GetCellValue("Top", "D5")
	require.NoError(t, err)
	assert.Equal(t, "SANOFI", labCell)
}
