package allocation

import "github.com/abgdnv/shelfstock/internal/model"

// FIFO draws the oldest purchase first.
type FIFO struct{}

var _ ShelfStrategy = FIFO{}

func (FIFO) Name() string { return NameFIFO }

func (FIFO) SelectBatchFromBackStore(candidates []model.StockBatch) (model.StockBatch, bool) {
	return minBy(candidates, hasStock, byPurchaseThenExpiry)
}

// SelectBatchFromShelf uses the batch id as the receipt order, since shelf lots carry no purchase date.
func (FIFO) SelectBatchFromShelf(candidates []model.ShelfStock) (model.ShelfStock, bool) {
	return minBy(candidates, onShelf, func(a, b model.ShelfStock) bool {
		return a.BatchID < b.BatchID
	})
}

// ClosestExpiry draws the batch that expires soonest.
type ClosestExpiry struct{}

var _ ShelfStrategy = ClosestExpiry{}

func (ClosestExpiry) Name() string { return NameClosestExpiry }

func (ClosestExpiry) SelectBatchFromBackStore(candidates []model.StockBatch) (model.StockBatch, bool) {
	return minBy(candidates, hasStock, byExpiryThenPurchase)
}

func (ClosestExpiry) SelectBatchFromShelf(candidates []model.ShelfStock) (model.ShelfStock, bool) {
	return minBy(candidates, onShelf, shelfByExpiryThenBatch)
}
