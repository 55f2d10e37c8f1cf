package allocation

import (
	"time"

	"github.com/abgdnv/shelfstock/internal/model"
)

// ExpiryAwareFIFO rotates safe stock by age and only falls back to near-expiry stock
// when nothing safe is left.
//
// A batch is safe when it expires strictly after today + horizon. Among safe batches the
// oldest purchase wins (expiry breaks ties). With no safe batch, the same ordering runs over
// every candidate so a replenishment is never starved by near-expiry stock.
type ExpiryAwareFIFO struct {
	clock   model.Clock
	horizon time.Duration
}

var _ ShelfStrategy = (*ExpiryAwareFIFO)(nil)

// NewExpiryAwareFIFO returns the strategy. A nil clock means the system clock and a
// non-positive horizon means DefaultSafetyHorizon.
func NewExpiryAwareFIFO(clock model.Clock, horizon time.Duration) *ExpiryAwareFIFO {
	if clock == nil {
		clock = model.SystemClock
	}
	if horizon <= 0 {
		horizon = DefaultSafetyHorizon
	}
	return &ExpiryAwareFIFO{clock: clock, horizon: horizon}
}

func (s *ExpiryAwareFIFO) Name() string { return NameExpiryAwareFIFO }

// Cutoff is the last date on which a batch still counts as near-expiry.
func (s *ExpiryAwareFIFO) Cutoff() time.Time {
	return model.Day(s.clock.Now()).Add(s.horizon)
}

func (s *ExpiryAwareFIFO) SelectBatchFromBackStore(candidates []model.StockBatch) (model.StockBatch, bool) {
	cutoff := s.Cutoff()
	safe := func(b model.StockBatch) bool {
		return hasStock(b) && b.ExpiryDate.After(cutoff)
	}
	if b, ok := minBy(candidates, safe, byPurchaseThenExpiry); ok {
		return b, true
	}
	return minBy(candidates, hasStock, byPurchaseThenExpiry)
}

func (s *ExpiryAwareFIFO) SelectBatchFromShelf(candidates []model.ShelfStock) (model.ShelfStock, bool) {
	cutoff := s.Cutoff()
	safe := func(l model.ShelfStock) bool {
		return onShelf(l) && l.ExpiryDate.After(cutoff)
	}
	if l, ok := minBy(candidates, safe, shelfByExpiryThenBatch); ok {
		return l, true
	}
	return minBy(candidates, onShelf, shelfByExpiryThenBatch)
}
