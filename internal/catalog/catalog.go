package catalog

import (
	"context"
	"errors"
)

// Product visibility states. A privately hidden product stays in the
// catalog but is withdrawn from the storefront.
const (
	VisibilityVisible = "visible"
	VisibilityPrivate = "private"
)

// Stock status derived from the managed quantity
const (
	StockStatusInStock    = "instock"
	StockStatusOutOfStock = "outofstock"
)

// ErrProductNotFound is returned when a product ID does not exist
var ErrProductNotFound = errors.New("product not found")

// Product is one catalog entry as seen by the reconciliation engine
type Product struct {
	ID            int64  `db:"id" json:"id"`
	SKU           string `db:"sku" json:"sku"`
	Name          string `db:"name" json:"name"`
	StockQuantity int    `db:"stock_quantity" json:"stock_quantity"`
	ManageStock   bool   `db:"manage_stock" json:"manage_stock"`
	StockStatus   string `db:"stock_status" json:"stock_status"`
	Visibility    string `db:"visibility" json:"visibility"`
}

// Catalog is the product store the engine reconciles against
type Catalog interface {
	// FindIDsBySKU resolves a batch of SKUs to product IDs. SKUs with no
	// matching product are simply absent from the result.
	FindIDsBySKU(ctx context.Context, skus []string) (map[string]int64, error)

	// Get loads one product by ID
	Get(ctx context.Context, id int64) (*Product, error)

	// UpdateStock sets the managed stock quantity and the derived stock
	// status, and invalidates any cached stock reads for the product.
	UpdateStock(ctx context.Context, id int64, quantity int) error

	// SetVisibility shows or hides a product on the storefront
	SetVisibility(ctx context.Context, id int64, visibility string) error

	// AllSKUs lists every product carrying a SKU, whether or not it
	// manages stock.
	AllSKUs(ctx context.Context) (map[string]int64, error)
}
