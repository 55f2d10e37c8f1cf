package model

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
)

// StockBatch is a dated lot of back-store stock for one product.
// QuantityRemaining only ever decreases; a batch at zero is exhausted.
type StockBatch struct {
	ID                int64
	ProductCode       string
	PurchaseDate      time.Time
	ExpiryDate        time.Time
	QuantityRemaining int
}

// NewStockBatch validates a batch on receipt. The ID is assigned by the store.
func NewStockBatch(productCode string, purchaseDate, expiryDate time.Time, quantity int) (StockBatch, error) {
	if strings.TrimSpace(productCode) == "" {
		return StockBatch{}, fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	if quantity <= 0 {
		return StockBatch{}, fmt.Errorf("%w: batch quantity must be positive, got %d", perrors.ErrInvalidQuantity, quantity)
	}
	purchaseDate, expiryDate = Day(purchaseDate), Day(expiryDate)
	if expiryDate.Before(purchaseDate) {
		return StockBatch{}, fmt.Errorf("%w: expiry date %s is before purchase date %s",
			perrors.ErrInvalidArgument, expiryDate.Format(time.DateOnly), purchaseDate.Format(time.DateOnly))
	}
	return StockBatch{
		ProductCode:       productCode,
		PurchaseDate:      purchaseDate,
		ExpiryDate:        expiryDate,
		QuantityRemaining: quantity,
	}, nil
}

// Exhausted reports whether nothing is left to draw from the batch.
func (b StockBatch) Exhausted() bool {
	return b.QuantityRemaining <= 0
}
