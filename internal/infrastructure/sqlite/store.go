package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quotecompare/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  product_id TEXT,
  product_name TEXT NOT NULL,
  quantity TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  supplier_name TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_batch_id ON items(batch_id);
`

const itemColumns = `id, batch_id, source, product_id, product_name, quantity, unit_price, total_price, supplier_name, created_at, updated_at`

// Store is the SQLite-backed item repository. Decimal fields are stored as
// TEXT so values round-trip exactly.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (and creates if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection serialises writers and keeps :memory: databases alive
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode = WAL;`, `PRAGMA busy_timeout = 5000;`} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{conn: conn, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the database handle
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// InsertBatch stores all items in one transaction and returns them with their
// assigned ids, in input order.
func (s *Store) InsertBatch(ctx context.Context, items []domain.NewItem) ([]domain.QuotationItem, error) {
	if len(items) == 0 {
		return []domain.QuotationItem{}, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO items (batch_id, source, product_id, product_name, quantity, unit_price, total_price, supplier_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := s.now()
	stamp := now.Format(time.RFC3339Nano)
	out := make([]domain.QuotationItem, 0, len(items))
	for _, n := range items {
		total := n.TotalPrice()
		supplier := domain.SupplierOrDefault(n.SupplierName)
		res, err := stmt.ExecContext(ctx,
			n.BatchID, n.Source, n.ProductID, n.ProductName,
			n.Quantity, n.UnitPrice, total, supplier, stamp, stamp,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting item %q: %w", n.ProductName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.QuotationItem{
			ID:           id,
			BatchID:      n.BatchID,
			Source:       n.Source,
			ProductID:    n.ProductID,
			ProductName:  n.ProductName,
			Quantity:     n.Quantity,
			UnitPrice:    n.UnitPrice,
			TotalPrice:   total,
			SupplierName: supplier,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every stored item in insertion order
func (s *Store) ListAll(ctx context.Context) ([]domain.QuotationItem, error) {
	return s.query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id ASC`)
}

// ListByBatch returns the items created by one upload
func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]domain.QuotationItem, error) {
	return s.query(ctx, `SELECT `+itemColumns+` FROM items WHERE batch_id = ? ORDER BY id ASC`, batchID)
}

// LatestBatchID returns the batch of the most recently inserted item, or ""
// when the store is empty.
func (s *Store) LatestBatchID(ctx context.Context) (string, error) {
	var batchID string
	err := s.conn.QueryRowContext(ctx, `SELECT batch_id FROM items ORDER BY id DESC LIMIT 1`).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return batchID, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.QuotationItem, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id=%d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Update applies patch to the item inside a transaction so the field changes
// and the re-derived total become visible together.
func (s *Store) Update(ctx context.Context, id int64, patch domain.ItemPatch) (*domain.QuotationItem, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	it, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id=%d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	it.Apply(patch)
	it.UpdatedAt = s.now()

	_, err = tx.ExecContext(ctx, `
UPDATE items SET
  product_id = ?,
  product_name = ?,
  quantity = ?,
  unit_price = ?,
  total_price = ?,
  supplier_name = ?,
  updated_at = ?
WHERE id = ?`,
		it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice, it.SupplierName,
		it.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.QuotationItem, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.QuotationItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.QuotationItem, error) {
	var it domain.QuotationItem
	var createdAt, updatedAt string
	if err := row.Scan(
		&it.ID, &it.BatchID, &it.Source, &it.ProductID, &it.ProductName,
		&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.SupplierName,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.QuotationItem{}, err
	}
	it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	it.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return it, nil
}
