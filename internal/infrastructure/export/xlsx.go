package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/quotecompare/backend/internal/domain"
)

const (
	ItemsSheet      = "Items"
	ComparisonSheet = "Comparison"

	headerFill = "4F46E5"
	bestFill   = "C6EFCE"
)

var comparisonHeaders = []string{"Product", "Supplier", "Source", "Quantity", "Unit Price", "Total Price", "Best Price", "Best"}

// WriteXLSX writes a workbook with an Items sheet listing every item and a
// Comparison sheet listing each product group with its best-price rows
// highlighted.
func WriteXLSX(w io.Writer, items []domain.QuotationItem, cmp domain.Comparison) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ItemsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ComparisonSheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	bestStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{bestFill}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := writeHeader(f, ItemsSheet, ItemHeaders, headerStyle); err != nil {
		return err
	}
	for i, it := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(ItemsSheet, cell, value)
		}
		set(1, it.ID)
		set(2, it.BatchID)
		set(3, it.Source)
		set(4, it.SupplierName)
		set(5, it.ProductName)
		set(6, derefString(it.ProductID))
		set(7, it.Quantity.InexactFloat64())
		set(8, it.UnitPrice.InexactFloat64())
		set(9, it.TotalPrice.InexactFloat64())
	}

	if err := writeHeader(f, ComparisonSheet, comparisonHeaders, headerStyle); err != nil {
		return err
	}
	r := 2
	for _, g := range cmp.Groups {
		for _, it := range g.Items {
			set := func(col int, value any) {
				cell, _ := excelize.CoordinatesToCellName(col, r)
				_ = f.SetCellValue(ComparisonSheet, cell, value)
			}
			set(1, g.DisplayName)
			set(2, it.SupplierName)
			set(3, it.Source)
			set(4, it.Quantity.InexactFloat64())
			set(5, it.UnitPrice.InexactFloat64())
			set(6, it.TotalPrice.InexactFloat64())
			set(7, g.BestPrice.InexactFloat64())
			if it.IsBest {
				set(8, "yes")
				start, _ := excelize.CoordinatesToCellName(1, r)
				end, _ := excelize.CoordinatesToCellName(len(comparisonHeaders), r)
				if err := f.SetCellStyle(ComparisonSheet, start, end, bestStyle); err != nil {
					return err
				}
			}
			r++
		}
	}

	_ = f.SetColWidth(ItemsSheet, "A", "I", 16)
	_ = f.SetColWidth(ComparisonSheet, "A", "H", 16)

	return f.Write(w)
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	end, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", end, style)
}
