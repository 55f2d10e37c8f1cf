package model

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/shopspring/decimal"
)

// DiscountType tells how a discount value is applied to a line total.
type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

var hundred = decimal.NewFromInt(100)

// Discount is a promotion valid over an inclusive date range for a set of products.
type Discount struct {
	ID           int64
	Name         string
	Type         DiscountType
	Value        decimal.Decimal
	StartDate    time.Time
	EndDate      time.Time
	ProductCodes []string
}

// NewDiscount validates the promotion fields. The ID is assigned by the store.
func NewDiscount(name string, typ DiscountType, value decimal.Decimal, start, end time.Time, productCodes []string) (Discount, error) {
	if strings.TrimSpace(name) == "" {
		return Discount{}, fmt.Errorf("%w: discount name must not be empty", perrors.ErrInvalidArgument)
	}
	switch typ {
	case DiscountPercent:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return Discount{}, fmt.Errorf("%w: percent discount must be within [0, 100], got %s", perrors.ErrInvalidArgument, value)
		}
	case DiscountAmount:
		if value.IsNegative() {
			return Discount{}, fmt.Errorf("%w: amount discount must be >= 0, got %s", perrors.ErrInvalidArgument, value)
		}
	default:
		return Discount{}, fmt.Errorf("%w: unknown discount type %q", perrors.ErrInvalidArgument, typ)
	}
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return Discount{}, fmt.Errorf("%w: discount ends before it starts", perrors.ErrInvalidArgument)
	}
	return Discount{
		Name:         name,
		Type:         typ,
		Value:        value,
		StartDate:    start,
		EndDate:      end,
		ProductCodes: productCodes,
	}, nil
}

// IsActiveOn reports whether date falls within [StartDate, EndDate].
func (d Discount) IsActiveOn(date time.Time) bool {
	date = Day(date)
	return !date.Before(Day(d.StartDate)) && !date.After(Day(d.EndDate))
}

// Apply returns the line total after this discount. Unknown types leave the total unchanged.
// The result is not clamped; callers decide the floor.
func (d Discount) Apply(total decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case DiscountPercent:
		return total.Mul(decimal.NewFromInt(1).Sub(d.Value.Div(hundred)))
	case DiscountAmount:
		return total.Sub(d.Value)
	default:
		return total
	}
}
