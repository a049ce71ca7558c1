package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/quotecompare/backend/internal/domain"
)

// GroupKey normalizes a product name into its comparison key: surrounding
// whitespace trimmed, then Unicode case folded.
func GroupKey(productName string) string {
	// a Caser keeps state, so each call gets its own
	return cases.Fold().String(strings.TrimSpace(productName))
}

// Compare groups items by GroupKey and marks, per group, every item whose
// unit price equals the group minimum. Groups keep the order in which their
// first member appears; members keep input order. The input is not modified.
func Compare(items []domain.QuotationItem) domain.Comparison {
	groups := make([]domain.ProductGroup, 0)
	index := make(map[string]int)

	for _, it := range items {
		key := GroupKey(it.ProductName)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, domain.ProductGroup{
				Key:         key,
				DisplayName: strings.TrimSpace(it.ProductName),
				BestPrice:   it.UnitPrice,
			})
		}
		g := &groups[i]
		if it.UnitPrice.LessThan(g.BestPrice) {
			g.BestPrice = it.UnitPrice
		}
		g.Items = append(g.Items, domain.ComparedItem{QuotationItem: it})
	}

	for gi := range groups {
		g := &groups[gi]
		for ii := range g.Items {
			g.Items[ii].IsBest = g.Items[ii].UnitPrice.Equal(g.BestPrice)
		}
	}

	return domain.NewComparison(groups)
}

// ComparisonService builds comparisons from the current store contents
type ComparisonService struct {
	items domain.ItemRepository
}

func NewComparisonService(items domain.ItemRepository) *ComparisonService {
	return &ComparisonService{items: items}
}

// Compare always re-reads the store so the result reflects every saved edit.
func (s *ComparisonService) Compare(ctx context.Context) (domain.Comparison, error) {
	items, err := s.items.ListAll(ctx)
	if err != nil {
		return domain.Comparison{}, fmt.Errorf("listing items: %w", err)
	}
	return Compare(items), nil
}
