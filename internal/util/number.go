package util

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyMarks = strings.NewReplacer(
	"$", "", "€", "", "S/", "", "USD", "", "EUR", "",
	" ", "", " ", "",
)

// ParseAmount parses a price or quantity token the way supplier documents
// write them: "1.234,56", "1,234.56", "$ 1 200.00", "12,5". A lone comma
// followed by exactly three digits is a thousands separator, otherwise it is
// the decimal mark.
func ParseAmount(input string) (decimal.Decimal, bool) {
	s := currencyMarks.Replace(strings.ToUpper(strings.TrimSpace(input)))
	if s == "" {
		return decimal.Zero, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts[len(parts)-1]) == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func StringPtr(v string) *string {
	return &v
}

func DecimalPtr(v decimal.Decimal) *decimal.Decimal {
	return &v
}

// NonEmpty returns nil for blank strings and a trimmed copy otherwise
func NonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
