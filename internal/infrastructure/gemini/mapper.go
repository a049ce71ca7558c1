package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quotecompare/backend/internal/domain"
	"github.com/quotecompare/backend/internal/util"
)

// rawLine is one item as the model returns it. Fields are kept raw because
// the model is free to answer "12", 12, "1.234,50" or null.
type rawLine struct {
	SupplierName json.RawMessage `json:"supplier_name"`
	ProductName  json.RawMessage `json:"product_name"`
	ProductID    json.RawMessage `json:"product_id"`
	Quantity     json.RawMessage `json:"quantity"`
	UnitPrice    json.RawMessage `json:"unit_price"`
	TotalPrice   json.RawMessage `json:"total_price"`
}

type itemsEnvelope struct {
	Items []rawLine `json:"items"`
}

// ParseResponse decodes the model output into extracted lines. The payload
// may be wrapped in markdown fences and may be either a bare array or an
// object with an "items" array.
func ParseResponse(content string) ([]domain.ExtractedLine, error) {
	payload := bytes.TrimSpace([]byte(stripFences(content)))
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty model response")
	}

	var raw []rawLine
	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode item array: %w", err)
		}
	case '{':
		var env itemsEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("failed to decode items object: %w", err)
		}
		raw = env.Items
	default:
		return nil, fmt.Errorf("model response is not JSON")
	}

	out := make([]domain.ExtractedLine, 0, len(raw))
	for _, r := range raw {
		out = append(out, MapLine(r))
	}
	return out, nil
}

// MapLine converts a loosely typed model item into the fixed-shape line.
// Values that are missing or not numeric stay nil. total_price is read but
// discarded since the stored total is always derived.
func MapLine(r rawLine) domain.ExtractedLine {
	line := domain.ExtractedLine{
		ProductID:    rawString(r.ProductID),
		SupplierName: rawString(r.SupplierName),
		Quantity:     rawAmount(r.Quantity),
		UnitPrice:    rawAmount(r.UnitPrice),
	}
	if name := rawString(r.ProductName); name != nil {
		line.ProductName = *name
	}
	return line
}

func stripFences(content string) string {
	if _, after, ok := strings.Cut(content, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return body
	}
	if _, after, ok := strings.Cut(content, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return body
	}
	return content
}

func rawString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return util.NonEmpty(s)
	}
	// numbers and other scalars keep their literal form
	return util.NonEmpty(string(raw))
}

func rawAmount(raw json.RawMessage) *decimal.Decimal {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	v, ok := util.ParseAmount(s)
	if !ok {
		return nil
	}
	return &v
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
