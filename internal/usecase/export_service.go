package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quotecompare/backend/internal/domain"
)

const (
	BatchLatest = "latest"
	BatchAll    = "all"
)

// ExportSelection is the set of items chosen for an export together with
// their comparison
type ExportSelection struct {
	Batch      string
	Items      []domain.QuotationItem
	Comparison domain.Comparison
}

// ExportService resolves which items an export covers
type ExportService struct {
	items domain.ItemRepository
}

func NewExportService(items domain.ItemRepository) *ExportService {
	return &ExportService{items: items}
}

// Select resolves batch ("latest" or empty, "all", or a batch uuid) to items.
// An empty store exports an empty selection; an unknown batch id is not found.
func (s *ExportService) Select(ctx context.Context, batch string) (*ExportSelection, error) {
	batch = strings.ToLower(strings.TrimSpace(batch))

	var (
		items []domain.QuotationItem
		err   error
	)
	switch batch {
	case "", BatchLatest:
		batch = BatchLatest
		latest, lerr := s.items.LatestBatchID(ctx)
		if lerr != nil {
			return nil, lerr
		}
		if latest == "" {
			items = []domain.QuotationItem{}
		} else {
			items, err = s.items.ListByBatch(ctx, latest)
		}
	case BatchAll:
		items, err = s.items.ListAll(ctx)
	default:
		if _, perr := uuid.Parse(batch); perr != nil {
			return nil, domain.NewValidationError("batch", "must be latest, all or a batch id")
		}
		items, err = s.items.ListByBatch(ctx, batch)
		if err == nil && len(items) == 0 {
			return nil, fmt.Errorf("%w: batch=%s", domain.ErrNotFound, batch)
		}
	}
	if err != nil {
		return nil, err
	}

	return &ExportSelection{Batch: batch, Items: items, Comparison: Compare(items)}, nil
}
