// Package export renders dashboard reports as downloadable files.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	"github.com/pharmalytics/pharmalytics/internal/kpi"
)

var kpiOrder = []string{"ca_sellin", "ca_sellout", "marge_brute", "stock_valorise", "rotation_stock", "couverture_stock"}

// WriteKPICSV serialises the KPI cards, one metric per line.
func WriteKPICSV(w io.Writer, report analytics.KPIReport, analysis, comparison string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Indicateur", "Valeur", "Valeur brute", "Evolution", "Tendance"}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Période analysée", analysis, "", "", ""}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Période de comparaison", comparison, "", "", ""}); err != nil {
		return err
	}
	for _, key := range kpiOrder {
		card, ok := report.KPIs[key]
		if !ok {
			continue
		}
		if err := writer.Write([]string{card.Label, card.Value, formatFloat(card.RawValue), card.Evolution, string(card.Trend)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteEvolutionCSV emits the chart series followed by the insight block.
// Buckets without data are written as empty cells.
func WriteEvolutionCSV(w io.Writer, report analytics.EvolutionReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Période", "Sell-in", "Sell-out", "Marge", "Stock"}); err != nil {
		return err
	}
	for _, point := range report.Points {
		if err := writer.Write([]string{
			point.Period,
			formatOptional(point.SellIn),
			formatOptional(point.SellOut),
			formatOptional(point.Marge),
			formatOptional(point.Stock),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write(nil); err != nil {
		return err
	}
	if err := writeInsights(writer, report.Insights); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func writeInsights(writer *csv.Writer, in kpi.Insights) error {
	records := [][]string{
		{"Croissance sell-in", in.GrowthSellIn},
		{"Croissance sell-out", in.GrowthSellOut},
		{"Croissance marge", in.GrowthMargin},
		{"Croissance stock", in.GrowthStock},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
