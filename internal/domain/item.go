package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSupplier is the label used when a line item carries no supplier name
const UnknownSupplier = "Unknown Supplier"

// QuotationItem is one stored line item extracted from a quotation document
type QuotationItem struct {
	ID           int64           `json:"id"`
	BatchID      string          `json:"batch_id"`
	Source       string          `json:"source"`
	ProductID    *string         `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	SupplierName string          `json:"supplier_name"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewItem is a line item that has not been assigned an id yet
type NewItem struct {
	BatchID      string
	Source       string
	ProductID    *string
	ProductName  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	SupplierName string
}

// TotalPrice derives the line total.
func (n NewItem) TotalPrice() decimal.Decimal {
	return n.Quantity.Mul(n.UnitPrice)
}

// ItemPatch carries the fields of an update request. Nil means "leave as is".
type ItemPatch struct {
	ProductID    *string
	ProductName  *string
	Quantity     *decimal.Decimal
	UnitPrice    *decimal.Decimal
	SupplierName *string
}

// IsEmpty reports whether the patch changes nothing
func (p ItemPatch) IsEmpty() bool {
	return p.ProductID == nil && p.ProductName == nil && p.Quantity == nil &&
		p.UnitPrice == nil && p.SupplierName == nil
}

// Validate rejects values that must never reach stored state.
func (p ItemPatch) Validate() error {
	if p.ProductName != nil && strings.TrimSpace(*p.ProductName) == "" {
		return NewValidationError("product_name", "must not be blank")
	}
	if p.Quantity != nil && p.Quantity.IsNegative() {
		return NewValidationError("quantity", "must be >= 0")
	}
	if p.UnitPrice != nil && p.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", "must be >= 0")
	}
	return nil
}

// Apply merges the patch into the item. When quantity or unit price is part
// of the patch the total is re-derived from the post-update pair, so the
// untouched half keeps its previously stored value.
func (it *QuotationItem) Apply(p ItemPatch) {
	if p.ProductID != nil {
		if v := strings.TrimSpace(*p.ProductID); v == "" {
			it.ProductID = nil
		} else {
			it.ProductID = &v
		}
	}
	if p.ProductName != nil {
		it.ProductName = strings.TrimSpace(*p.ProductName)
	}
	if p.SupplierName != nil {
		it.SupplierName = SupplierOrDefault(*p.SupplierName)
	}

	recompute := false
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
		recompute = true
	}
	if p.UnitPrice != nil {
		it.UnitPrice = *p.UnitPrice
		recompute = true
	}
	if recompute {
		it.TotalPrice = it.Quantity.Mul(it.UnitPrice)
	}
}

// SupplierOrDefault trims the supplier name and falls back to UnknownSupplier.
func SupplierOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownSupplier
	}
	return name
}

// ExtractedLine is one candidate line item returned by an extractor, before
// validation. Optional fields stay nil when the document did not carry them.
type ExtractedLine struct {
	ProductID    *string          `json:"product_id,omitempty"`
	ProductName  string           `json:"product_name" validate:"required"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	SupplierName *string          `json:"supplier_name,omitempty"`
}

// Document is an uploaded quotation file
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExtractionMode records which extractor produced a batch
type ExtractionMode string

const (
	ModeAI        ExtractionMode = "ai"
	ModeHeuristic ExtractionMode = "heuristic"
	ModeCache     ExtractionMode = "cache"
)

// UploadResult is returned after a document has been extracted and stored
type UploadResult struct {
	BatchID string          `json:"batch_id"`
	Source  string          `json:"source"`
	Mode    ExtractionMode  `json:"mode"`
	Items   []QuotationItem `json:"items"`
}
