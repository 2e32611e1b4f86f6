package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const trackerSchema = `
CREATE TABLE IF NOT EXISTS hidden_products (
	product_id INTEGER PRIMARY KEY,
	sku        TEXT NOT NULL,
	hidden_at  TIMESTAMP NOT NULL
);`

// HiddenTracker remembers which products the engine itself hid under
// the private missing-SKU policy. Only tracked products are ever
// restored, so manually hidden products stay hidden.
type HiddenTracker struct {
	db *sqlx.DB
}

// NewHiddenTracker creates the tracking table if needed
func NewHiddenTracker(db *sqlx.DB) (*HiddenTracker, error) {
	if _, err := db.Exec(trackerSchema); err != nil {
		return nil, fmt.Errorf("failed to create hidden products table: %w", err)
	}
	return &HiddenTracker{db: db}, nil
}

// Mark records that the engine hid a product
func (t *HiddenTracker) Mark(ctx context.Context, productID int64, sku string) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO hidden_products (product_id, sku, hidden_at) VALUES (?, ?, ?)
		 ON CONFLICT(product_id) DO NOTHING`,
		productID, sku, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track hidden product %d: %w", productID, err)
	}
	return nil
}

// Unmark forgets a product, typically after restoring its visibility
func (t *HiddenTracker) Unmark(ctx context.Context, productID int64) error {
	if _, err := t.db.ExecContext(ctx,
		`DELETE FROM hidden_products WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("failed to untrack hidden product %d: %w", productID, err)
	}
	return nil
}

// All returns every tracked product keyed by ID
func (t *HiddenTracker) All(ctx context.Context) (map[int64]string, error) {
	rows := []struct {
		ProductID int64  `db:"product_id"`
		SKU       string `db:"sku"`
	}{}
	if err := t.db.SelectContext(ctx, &rows,
		`SELECT product_id, sku FROM hidden_products`); err != nil {
		return nil, fmt.Errorf("failed to list hidden products: %w", err)
	}

	result := make(map[int64]string, len(rows))
	for _, row := range rows {
		result[row.ProductID] = row.SKU
	}
	return result, nil
}
