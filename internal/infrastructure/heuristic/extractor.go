package heuristic

import (
	"context"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/quotecompare/backend/internal/domain"
	"github.com/quotecompare/backend/internal/util"
)

var (
	supplierSkipWords = []string{"FACTURA", "QUOTATION", "PRESUPUESTO", "COTIZACION", "COTIZACIÓN", "FECHA", "DATE", "PAGINA", "PÁGINA", "PAGE", "NIT", "RUC"}

	headerKeywords = []string{
		"DOCUMENTO", "RNC:", "CLIENTE:", "VENDEDOR:", "CONDICION:", "VENCE:",
		"HORA:", "FECHA:", "REFERENCIA:", "TELEFONO", "TEL:", "LOCAL",
		"REPARTO", "DIAS", "PÁGINA", "PAGE", "CANT.", "PRECIO", "DESC.",
		"ITBIS", "IMPORTE", "DESCRIPCIÓN", "DESCRIPCION",
	}

	maxReasonable = decimal.NewFromInt(1000000)
	maxQuantity   = decimal.NewFromInt(10000)
)

const (
	minLineLen       = 10
	headerMaxLen     = 60
	supplierScanRows = 15
	maxNameTokens    = 20
	fallbackTokens   = 10
)

// Extractor reads line items from plain document text without any external
// service. Rows are recognised by their trailing numeric columns.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractLines ignores the credential; it exists to satisfy domain.LineExtractor.
func (e *Extractor) ExtractLines(_ context.Context, text string, _ string) ([]domain.ExtractedLine, error) {
	return Extract(text), nil
}

// Extract runs the column strategy first and only falls back to the looser
// "any line with a number" strategy when nothing was found.
func Extract(text string) []domain.ExtractedLine {
	if len(strings.TrimSpace(text)) < minLineLen {
		return nil
	}

	lines := splitLines(text)
	supplier := detectSupplier(lines)

	out := make([]domain.ExtractedLine, 0)
	for _, line := range lines {
		if item, ok := parseColumnLine(line, supplier); ok {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, line := range lines {
		if item, ok := parseLooseLine(line, supplier); ok {
			out = append(out, item)
		}
	}
	return out
}

func detectSupplier(lines []string) string {
	limit := len(lines)
	if limit > supplierScanRows {
		limit = supplierScanRows
	}
	for _, line := range lines[:limit] {
		upper := strings.ToUpper(line)
		if len(upper) <= 3 || containsAny(upper, supplierSkipWords) {
			continue
		}
		return line
	}
	return domain.UnknownSupplier
}

func isHeaderLine(line string) bool {
	if strings.HasPrefix(line, "Página") || strings.HasPrefix(line, "Cliente:") || strings.HasPrefix(line, "Vendedor:") {
		return true
	}
	return len(line) < headerMaxLen && containsAny(strings.ToUpper(line), headerKeywords)
}

// parseColumnLine scans tokens right to left collecting the trailing numbers
// (quantity, price, [discount], [tax], total) until the description starts.
func parseColumnLine(line, supplier string) (domain.ExtractedLine, bool) {
	if len(line) < minLineLen || isHeaderLine(line) {
		return domain.ExtractedLine{}, false
	}
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return domain.ExtractedLine{}, false
	}

	var trailing []decimal.Decimal
	var textParts []string
	inText := false
	for i := len(parts) - 1; i >= 0; i-- {
		val, ok := plausibleNumber(parts[i])
		if ok && !inText {
			trailing = append([]decimal.Decimal{val}, trailing...)
			continue
		}
		inText = true
		textParts = append([]string{parts[i]}, textParts...)
	}
	if len(trailing) < 2 || len(textParts) == 0 {
		return domain.ExtractedLine{}, false
	}

	var productID *string
	descParts := make([]string, 0, len(textParts))
	for _, part := range textParts {
		if productID == nil && looksLikeCode(part) {
			productID = util.StringPtr(part)
			continue
		}
		descParts = append(descParts, part)
	}
	if len(descParts) == 0 {
		descParts = textParts
		productID = nil
	}
	name := strings.Join(firstN(descParts, maxNameTokens), " ")

	qty := decimal.NewFromInt(1)
	var price decimal.Decimal
	if len(trailing) >= 3 {
		qty, price = trailing[0], trailing[1]
	} else {
		price = trailing[0]
	}
	if qty.GreaterThan(maxQuantity) {
		qty = decimal.NewFromInt(1)
	}

	return domain.ExtractedLine{
		ProductID:    productID,
		ProductName:  name,
		Quantity:     util.DecimalPtr(qty),
		UnitPrice:    util.DecimalPtr(price),
		SupplierName: util.StringPtr(supplier),
	}, true
}

// parseLooseLine takes the last number on the line as the price.
func parseLooseLine(line, supplier string) (domain.ExtractedLine, bool) {
	if len(line) < minLineLen || containsAny(strings.ToUpper(line), headerKeywords) {
		return domain.ExtractedLine{}, false
	}

	var nums []decimal.Decimal
	var textParts []string
	for _, p := range strings.Fields(line) {
		if v, ok := plausibleNumber(p); ok {
			nums = append(nums, v)
		} else {
			textParts = append(textParts, p)
		}
	}
	if len(nums) == 0 || len(textParts) == 0 {
		return domain.ExtractedLine{}, false
	}

	return domain.ExtractedLine{
		ProductName:  strings.Join(firstN(textParts, fallbackTokens), " "),
		Quantity:     util.DecimalPtr(decimal.NewFromInt(1)),
		UnitPrice:    util.DecimalPtr(nums[len(nums)-1]),
		SupplierName: util.StringPtr(supplier),
	}, true
}

func plausibleNumber(token string) (decimal.Decimal, bool) {
	v, ok := util.ParseAmount(token)
	if !ok || !v.IsPositive() || !v.LessThan(maxReasonable) {
		return decimal.Zero, false
	}
	return v, true
}

func looksLikeCode(token string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range token {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, p := range needles {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func firstN(parts []string, n int) []string {
	if len(parts) > n {
		return parts[:n]
	}
	return parts
}
