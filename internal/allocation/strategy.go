// Package allocation decides which batch a shelf replenishment or a sale draws from next.
package allocation

import (
	"fmt"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
)

// DefaultSafetyHorizon is how far past today a batch must expire to count as safe stock.
const DefaultSafetyHorizon = 7 * 24 * time.Hour

// Strategy names accepted by Parse.
const (
	NameFIFO            = "fifo"
	NameClosestExpiry   = "closest-expiry"
	NameExpiryAwareFIFO = "expiry-aware-fifo"
)

// ShelfStrategy picks the next batch to draw from.
// Both methods return false when no candidate is usable. Candidates with no quantity are ignored.
type ShelfStrategy interface {
	// SelectBatchFromBackStore picks the back-store batch a replenishment draws from next.
	SelectBatchFromBackStore(candidates []model.StockBatch) (model.StockBatch, bool)

	// SelectBatchFromShelf picks the shelf lot a sale draws from next.
	SelectBatchFromShelf(candidates []model.ShelfStock) (model.ShelfStock, bool)

	// Name identifies the strategy in logs and config.
	Name() string
}

// Parse builds the strategy registered under name.
func Parse(name string, clock model.Clock, horizon time.Duration) (ShelfStrategy, error) {
	switch name {
	case NameFIFO:
		return FIFO{}, nil
	case NameClosestExpiry:
		return ClosestExpiry{}, nil
	case NameExpiryAwareFIFO, "":
		return NewExpiryAwareFIFO(clock, horizon), nil
	default:
		return nil, fmt.Errorf("%w: unknown allocation strategy %q", perrors.ErrInvalidArgument, name)
	}
}

// minBy returns the smallest element of items that passes keep, ordered by less.
func minBy[T any](items []T, keep func(T) bool, less func(a, b T) bool) (T, bool) {
	var best T
	found := false
	for _, it := range items {
		if !keep(it) {
			continue
		}
		if !found || less(it, best) {
			best = it
			found = true
		}
	}
	return best, found
}

func hasStock(b model.StockBatch) bool { return b.QuantityRemaining > 0 }

func onShelf(s model.ShelfStock) bool { return s.Quantity > 0 }

// byPurchaseThenExpiry orders oldest purchase first, then soonest expiry, then lowest id.
func byPurchaseThenExpiry(a, b model.StockBatch) bool {
	if !a.PurchaseDate.Equal(b.PurchaseDate) {
		return a.PurchaseDate.Before(b.PurchaseDate)
	}
	if !a.ExpiryDate.Equal(b.ExpiryDate) {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}
	return a.ID < b.ID
}

// byExpiryThenPurchase orders soonest expiry first, then oldest purchase, then lowest id.
func byExpiryThenPurchase(a, b model.StockBatch) bool {
	if !a.ExpiryDate.Equal(b.ExpiryDate) {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}
	if !a.PurchaseDate.Equal(b.PurchaseDate) {
		return a.PurchaseDate.Before(b.PurchaseDate)
	}
	return a.ID < b.ID
}

// shelfByExpiryThenBatch orders soonest expiry first, then lowest batch id.
func shelfByExpiryThenBatch(a, b model.ShelfStock) bool {
	if !a.ExpiryDate.Equal(b.ExpiryDate) {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}
	return a.BatchID < b.BatchID
}
