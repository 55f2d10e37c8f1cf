// Package store provides the storage providers for products, batches, shelf lots and discounts.
package store

import (
	"context"
	"time"

	"github.com/abgdnv/shelfstock/internal/model"
)

// ProductStore keeps the product catalog.
type ProductStore interface {
	// CreateProduct adds a product. Returns ErrProductAlreadyExists if the code is taken.
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)

	// FindProductByCode returns ErrProductNotFound if no product has the given code.
	FindProductByCode(ctx context.Context, code string) (model.Product, error)

	// FindProducts returns a page of products ordered by code.
	FindProducts(ctx context.Context, limit, offset int) ([]model.Product, error)
}

// BatchStore keeps back-store batches.
type BatchStore interface {
	// CreateBatch stores a received batch and returns it with its assigned ID.
	CreateBatch(ctx context.Context, b model.StockBatch) (model.StockBatch, error)

	// FindNonExhaustedBatches returns the batches of a product that still hold stock.
	FindNonExhaustedBatches(ctx context.Context, productCode string) ([]model.StockBatch, error)

	// UpdateRemainingQuantity overwrites a batch's remaining quantity.
	// Returns ErrBatchNotFound if the batch does not exist.
	UpdateRemainingQuantity(ctx context.Context, batchID int64, newQuantity int) error
}

// ShelfStore keeps shelf stock as lots keyed by (product code, batch id).
// The shelf quantity of a product is the sum over its lots.
type ShelfStore interface {
	// GetShelfQuantity returns the aggregated shelf quantity, zero if the product was never stocked.
	GetShelfQuantity(ctx context.Context, productCode string) (int, error)

	// FindShelfLots returns the non-empty lots of a product ordered by expiry and batch id.
	FindShelfLots(ctx context.Context, productCode string) ([]model.ShelfStock, error)

	// IncreaseShelfQuantity adds lot.Quantity units to the lot, creating it if needed.
	IncreaseShelfQuantity(ctx context.Context, lot model.ShelfStock) error

	// DecreaseShelfQuantity removes delta units from a lot.
	// Returns ErrInsufficientShelfStock if the lot holds fewer than delta units.
	DecreaseShelfQuantity(ctx context.Context, productCode string, batchID int64, delta int) error
}

// DiscountStore keeps promotions.
type DiscountStore interface {
	// CreateDiscount stores a discount and returns it with its assigned ID.
	CreateDiscount(ctx context.Context, d model.Discount) (model.Discount, error)

	// FindActiveDiscounts returns the discounts linked to a product that run on date.
	FindActiveDiscounts(ctx context.Context, productCode string, date time.Time) ([]model.Discount, error)
}

// InventoryStore is what the coordinator mutates. RunInTx gives fn a view of the store whose
// writes are committed together, or not at all when fn returns an error.
type InventoryStore interface {
	BatchStore
	ShelfStore
	RunInTx(ctx context.Context, fn func(tx InventoryStore) error) error
}

// Store is the full storage provider.
type Store interface {
	ProductStore
	DiscountStore
	InventoryStore
	Ping(ctx context.Context) error
}
