package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/quotecompare/backend/internal/domain"
)

// ItemHeaders are the column titles shared by the CSV and the Items sheet
var ItemHeaders = []string{
	"ID", "Batch", "Source", "Supplier", "Product Name", "Product ID",
	"Quantity", "Unit Price", "Total Price",
}

// WriteCSV writes one row per item, in the order given
func WriteCSV(w io.Writer, items []domain.QuotationItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ItemHeaders); err != nil {
		return err
	}
	for _, it := range items {
		if err := cw.Write(itemRecord(it)); err != nil {
			return fmt.Errorf("writing item %d: %w", it.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func itemRecord(it domain.QuotationItem) []string {
	return []string{
		strconv.FormatInt(it.ID, 10),
		it.BatchID,
		it.Source,
		it.SupplierName,
		it.ProductName,
		derefString(it.ProductID),
		it.Quantity.String(),
		it.UnitPrice.String(),
		it.TotalPrice.String(),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
