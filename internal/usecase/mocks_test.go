package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quotecompare/backend/internal/domain"
)

// MockItemRepository is an in-memory domain.ItemRepository
type MockItemRepository struct {
	mu        sync.Mutex
	items     []domain.QuotationItem
	nextID    int64
	insertErr error
	inserts   int
}

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{nextID: 1}
}

func (m *MockItemRepository) InsertBatch(ctx context.Context, items []domain.NewItem) ([]domain.QuotationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	out := make([]domain.QuotationItem, 0, len(items))
	for _, n := range items {
		it := domain.QuotationItem{
			ID:           m.nextID,
			BatchID:      n.BatchID,
			Source:       n.Source,
			ProductID:    n.ProductID,
			ProductName:  n.ProductName,
			Quantity:     n.Quantity,
			UnitPrice:    n.UnitPrice,
			TotalPrice:   n.TotalPrice(),
			SupplierName: domain.SupplierOrDefault(n.SupplierName),
		}
		m.nextID++
		m.items = append(m.items, it)
		out = append(out, it)
	}
	return out, nil
}

func (m *MockItemRepository) ListAll(ctx context.Context) ([]domain.QuotationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QuotationItem{}, m.items...), nil
}

func (m *MockItemRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.QuotationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.QuotationItem{}
	for _, it := range m.items {
		if it.BatchID == batchID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *MockItemRepository) LatestBatchID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return "", nil
	}
	return m.items[len(m.items)-1].BatchID, nil
}

func (m *MockItemRepository) GetByID(ctx context.Context, id int64) (*domain.QuotationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: id=%d", domain.ErrNotFound, id)
}

func (m *MockItemRepository) Update(ctx context.Context, id int64, patch domain.ItemPatch) (*domain.QuotationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Apply(patch)
			cp := m.items[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: id=%d", domain.ErrNotFound, id)
}

// MockTextExtractor returns fixed text or error
type MockTextExtractor struct {
	text string
	err  error
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, doc domain.Document) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

// MockLineExtractor returns fixed lines and records the credential it saw
type MockLineExtractor struct {
	lines      []domain.ExtractedLine
	err        error
	delay      time.Duration
	calls      int
	credential string
}

func (m *MockLineExtractor) ExtractLines(ctx context.Context, text string, credential string) ([]domain.ExtractedLine, error) {
	m.calls++
	m.credential = credential
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.lines, nil
}

// MockCacheRepository is a map-backed domain.CacheRepository
type MockCacheRepository struct {
	data      map[string][]byte
	setCalled bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{data: make(map[string][]byte)}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalled = true
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}
