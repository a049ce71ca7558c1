package domain

import (
	"context"
	"time"
)

// ItemRepository is the canonical store of quotation items
type ItemRepository interface {
	InsertBatch(ctx context.Context, items []NewItem) ([]QuotationItem, error)
	ListAll(ctx context.Context) ([]QuotationItem, error)
	ListByBatch(ctx context.Context, batchID string) ([]QuotationItem, error)
	LatestBatchID(ctx context.Context) (string, error)
	GetByID(ctx context.Context, id int64) (*QuotationItem, error)
	Update(ctx context.Context, id int64, patch ItemPatch) (*QuotationItem, error)
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TextExtractor pulls plain text out of an uploaded document
type TextExtractor interface {
	ExtractText(ctx context.Context, doc Document) (string, error)
}

// LineExtractor turns document text into candidate line items.
// credential may be empty; implementations that need one fall back to their
// configured default.
type LineExtractor interface {
	ExtractLines(ctx context.Context, text string, credential string) ([]ExtractedLine, error)
}
