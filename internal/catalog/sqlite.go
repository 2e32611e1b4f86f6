package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	sku            TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL DEFAULT '',
	stock_quantity INTEGER NOT NULL DEFAULT 0,
	manage_stock   INTEGER NOT NULL DEFAULT 1,
	stock_status   TEXT NOT NULL DEFAULT 'instock',
	visibility     TEXT NOT NULL DEFAULT 'visible'
);
CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);`

// SQLiteCatalog is the database-backed catalog. Reads go through a
// small per-product cache which every stock write invalidates, so stale
// quantities are never served after a reconciliation run.
type SQLiteCatalog struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[int64]Product
}

// NewSQLiteCatalog creates the products table if needed
func NewSQLiteCatalog(db *sqlx.DB, logger *slog.Logger) (*SQLiteCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create products table: %w", err)
	}
	return &SQLiteCatalog{
		db:     db,
		logger: logger.With(slog.String("component", "catalog")),
		cache:  make(map[int64]Product),
	}, nil
}

// FindIDsBySKU resolves a batch of SKUs to product IDs in one query
func (c *SQLiteCatalog) FindIDsBySKU(ctx context.Context, skus []string) (map[string]int64, error) {
	if len(skus) == 0 {
		return map[string]int64{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, sku FROM products WHERE sku IN (?)`, skus)
	if err != nil {
		return nil, fmt.Errorf("failed to build SKU lookup: %w", err)
	}

	rows := []struct {
		ID  int64  `db:"id"`
		SKU string `db:"sku"`
	}{}
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to look up SKUs: %w", err)
	}

	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.SKU] = row.ID
	}
	return result, nil
}

// Get loads one product, serving from cache when possible
func (c *SQLiteCatalog) Get(ctx context.Context, id int64) (*Product, error) {
	c.mu.RLock()
	if cached, ok := c.cache[id]; ok {
		c.mu.RUnlock()
		product := cached
		return &product, nil
	}
	c.mu.RUnlock()

	var product Product
	err := c.db.GetContext(ctx, &product,
		`SELECT id, sku, name, stock_quantity, manage_stock, stock_status, visibility
		 FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}

	c.mu.Lock()
	c.cache[id] = product
	c.mu.Unlock()

	return &product, nil
}

// UpdateStock writes the quantity, derives the stock status, and drops
// the cached read for the product.
func (c *SQLiteCatalog) UpdateStock(ctx context.Context, id int64, quantity int) error {
	status := StockStatusInStock
	if quantity <= 0 {
		status = StockStatusOutOfStock
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE products SET stock_quantity = ?, manage_stock = 1, stock_status = ? WHERE id = ?`,
		quantity, status, id)
	if err != nil {
		return fmt.Errorf("failed to update stock for product %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update stock for product %d: %w", id, err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}

	c.invalidate(id)
	return nil
}

// SetVisibility shows or hides a product
func (c *SQLiteCatalog) SetVisibility(ctx context.Context, id int64, visibility string) error {
	if visibility != VisibilityVisible && visibility != VisibilityPrivate {
		return fmt.Errorf("unknown visibility %q", visibility)
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE products SET visibility = ? WHERE id = ?`, visibility, id)
	if err != nil {
		return fmt.Errorf("failed to set visibility for product %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set visibility for product %d: %w", id, err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}

	c.invalidate(id)
	return nil
}

// AllSKUs lists every product carrying a SKU, keyed by SKU
func (c *SQLiteCatalog) AllSKUs(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		ID  int64  `db:"id"`
		SKU string `db:"sku"`
	}{}
	if err := c.db.SelectContext(ctx, &rows,
		`SELECT id, sku FROM products WHERE sku != ''`); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.SKU] = row.ID
	}
	return result, nil
}

// Insert adds a product, mainly for seeding and tests
func (c *SQLiteCatalog) Insert(ctx context.Context, product Product) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`INSERT INTO products (sku, name, stock_quantity, manage_stock, stock_status, visibility)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		product.SKU, product.Name, product.StockQuantity, product.ManageStock,
		defaultString(product.StockStatus, StockStatusInStock),
		defaultString(product.Visibility, VisibilityVisible))
	if err != nil {
		return 0, fmt.Errorf("failed to insert product %s: %w", product.SKU, err)
	}
	return result.LastInsertId()
}

func (c *SQLiteCatalog) invalidate(id int64) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
