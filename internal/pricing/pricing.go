// Package pricing computes line totals for a product and quantity.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/shopspring/decimal"
)

// Strategy computes the total charged for a line item.
type Strategy interface {
	// Calculate returns the total for quantity units of product.
	Calculate(ctx context.Context, product model.Product, quantity int) (decimal.Decimal, error)

	// Quote returns the total together with how it was reached.
	Quote(ctx context.Context, product model.Product, quantity int) (Quote, error)
}

// ShelfReader reports how many units of a product are on the shelf.
type ShelfReader interface {
	GetShelfQuantity(ctx context.Context, productCode string) (int, error)
}

// DiscountFinder lists the discounts running for a product on a date.
type DiscountFinder interface {
	FindActiveDiscounts(ctx context.Context, productCode string, date time.Time) ([]model.Discount, error)
}

// Quote is a priced line item. Discount is nil when the base total was charged.
type Quote struct {
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal
	BaseTotal   decimal.Decimal
	Total       decimal.Decimal
	Discount    *model.Discount
}

// Saving is the amount taken off the base total.
func (q Quote) Saving() decimal.Decimal {
	return q.BaseTotal.Sub(q.Total)
}

func validate(product model.Product, quantity int) error {
	if strings.TrimSpace(product.Code) == "" {
		return fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", perrors.ErrInvalidQuantity, quantity)
	}
	return nil
}

// Flat charges unit price times quantity.
type Flat struct{}

var _ Strategy = Flat{}

func (f Flat) Calculate(ctx context.Context, product model.Product, quantity int) (decimal.Decimal, error) {
	q, err := f.Quote(ctx, product, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Total, nil
}

func (Flat) Quote(_ context.Context, product model.Product, quantity int) (Quote, error) {
	if err := validate(product, quantity); err != nil {
		return Quote{}, err
	}
	base := product.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return Quote{
		ProductCode: product.Code,
		Quantity:    quantity,
		UnitPrice:   product.UnitPrice,
		BaseTotal:   base,
		Total:       base,
	}, nil
}

// BestDiscount charges the flat total reduced by the single most favourable active discount.
// Discounts are never combined, and a discount is only applied while the shelf holds more
// than minQuantity units.
type BestDiscount struct {
	flat        Flat
	shelf       ShelfReader
	discounts   DiscountFinder
	clock       model.Clock
	minQuantity int
	logger      *slog.Logger
}

var _ Strategy = (*BestDiscount)(nil)

// NewBestDiscount builds the strategy. A nil clock means the system clock.
func NewBestDiscount(shelf ShelfReader, discounts DiscountFinder, clock model.Clock, minQuantity int, logger *slog.Logger) *BestDiscount {
	if clock == nil {
		clock = model.SystemClock
	}
	return &BestDiscount{
		shelf:       shelf,
		discounts:   discounts,
		clock:       clock,
		minQuantity: minQuantity,
		logger:      logger.With("component", "pricing"),
	}
}

func (b *BestDiscount) Calculate(ctx context.Context, product model.Product, quantity int) (decimal.Decimal, error) {
	q, err := b.Quote(ctx, product, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Total, nil
}

func (b *BestDiscount) Quote(ctx context.Context, product model.Product, quantity int) (Quote, error) {
	q, err := b.flat.Quote(ctx, product, quantity)
	if err != nil {
		return Quote{}, err
	}

	available, err := b.shelf.GetShelfQuantity(ctx, product.Code)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing %s: read shelf quantity: %w", product.Code, err)
	}
	if available <= b.minQuantity {
		b.logger.DebugContext(ctx, "Discounts suppressed, no shelf stock", "product_code", product.Code, "available", available)
		return q, nil
	}

	today := model.Day(b.clock.Now())
	active, err := b.discounts.FindActiveDiscounts(ctx, product.Code, today)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing %s: find active discounts: %w", product.Code, err)
	}

	best := q.BaseTotal
	for i := range active {
		candidate := active[i].Apply(q.BaseTotal)
		if candidate.LessThan(best) {
			best = candidate
			q.Discount = &active[i]
		}
	}
	if best.IsNegative() {
		best = decimal.Zero
	}
	q.Total = best

	if q.Discount != nil {
		b.logger.DebugContext(ctx, "Discount applied",
			"product_code", product.Code, "discount", q.Discount.Name, "base", q.BaseTotal.String(), "total", q.Total.String())
	}
	return q, nil
}
