package usecase

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quotecompare/backend/internal/domain"
)

var lineValidator = validator.New(validator.WithRequiredStructEnabled())

// buildItems turns extracted lines into storable items. Lines without a
// product name or with a negative quantity or price are dropped and logged;
// missing numbers count as zero. Extracted totals are never trusted, the
// store derives them.
func buildItems(logger *zerolog.Logger, lines []domain.ExtractedLine, batchID, source string) []domain.NewItem {
	out := make([]domain.NewItem, 0, len(lines))
	for i, line := range lines {
		line.ProductName = strings.TrimSpace(line.ProductName)
		if err := lineValidator.Struct(line); err != nil {
			logger.Debug().Int("line", i).Err(err).Msg("dropping extracted line")
			continue
		}

		qty := valueOrZero(line.Quantity)
		price := valueOrZero(line.UnitPrice)
		if qty.IsNegative() || price.IsNegative() {
			logger.Debug().Int("line", i).Str("product", line.ProductName).Msg("dropping line with negative amount")
			continue
		}

		n := domain.NewItem{
			BatchID:     batchID,
			Source:      source,
			ProductName: line.ProductName,
			Quantity:    qty,
			UnitPrice:   price,
		}
		if line.ProductID != nil {
			if id := strings.TrimSpace(*line.ProductID); id != "" {
				n.ProductID = &id
			}
		}
		if line.SupplierName != nil {
			n.SupplierName = *line.SupplierName
		}
		n.SupplierName = domain.SupplierOrDefault(n.SupplierName)
		out = append(out, n)
	}
	return out
}

func valueOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
