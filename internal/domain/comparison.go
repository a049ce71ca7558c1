package domain

import "github.com/shopspring/decimal"

// ComparedItem is a stored item annotated with whether it carries its group's best price
type ComparedItem struct {
	QuotationItem
	IsBest bool `json:"is_best"`
}

// ProductGroup clusters items sharing a normalized product name
type ProductGroup struct {
	Key         string          `json:"key"`
	DisplayName string          `json:"display_name"`
	BestPrice   decimal.Decimal `json:"best_price"`
	Items       []ComparedItem  `json:"items"`
}

// BestItems returns the members tied at the best price, in input order
func (g ProductGroup) BestItems() []ComparedItem {
	out := make([]ComparedItem, 0, 1)
	for _, it := range g.Items {
		if it.IsBest {
			out = append(out, it)
		}
	}
	return out
}

// Comparison is the grouped view over a snapshot of items. Groups are ordered
// by the first appearance of each key in the snapshot.
type Comparison struct {
	Groups []ProductGroup `json:"groups"`
	index  map[string]int
}

// NewComparison builds a Comparison and its key index
func NewComparison(groups []ProductGroup) Comparison {
	idx := make(map[string]int, len(groups))
	for i, g := range groups {
		idx[g.Key] = i
	}
	return Comparison{Groups: groups, index: idx}
}

// IsEmpty reports whether there is nothing to compare
func (c Comparison) IsEmpty() bool {
	return len(c.Groups) == 0
}

// Group looks a group up by its normalized key
func (c Comparison) Group(key string) (ProductGroup, bool) {
	i, ok := c.index[key]
	if !ok {
		return ProductGroup{}, false
	}
	return c.Groups[i], true
}
