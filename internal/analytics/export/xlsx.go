package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
)

// TopSheet describes the breakdown written by WriteTopXLSX.
type TopSheet struct {
	Title  string
	SortBy string
	Rows   []analytics.TopRow
}

var topHeader = []any{"Rang", "Code", "Libellé", "Laboratoire", "Catégorie", "Produits", "Pharmacies", "Quantité", "CA TTC", "Marge", "Prix moyen"}

// WriteTopXLSX writes the breakdown as a single sheet workbook.
func WriteTopXLSX(w io.Writer, sheet TopSheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	name := "Top"
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if err := f.SetCellValue(name, "A1", sheet.Title); err != nil {
		return err
	}
	if err := f.SetCellValue(name, "A2", "Tri: "+sheet.SortBy); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A4", &topHeader); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(name, "A4", "K4", bold)
	}
	for i, row := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+5)
		if err != nil {
			return err
		}
		values := []any{
			i + 1,
			row.Key,
			row.Name,
			deref(row.BrandLab),
			deref(row.Category),
			row.ProductCount,
			row.PharmacyCount,
			row.Quantity,
			row.CaTTC,
			row.Marge,
			optional(row.AvgPrice),
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(name, "C", "C", 40)
	_, err = f.WriteTo(w)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
