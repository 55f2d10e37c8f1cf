// Package model holds the stock and pricing entities together with the invariants they must keep.
package model

import (
	"fmt"
	"strings"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/shopspring/decimal"
)

// Product is an immutable catalog entry.
type Product struct {
	Code      string
	Name      string
	UnitPrice decimal.Decimal
}

// NewProduct validates the catalog fields and returns a Product.
func NewProduct(code, name string, unitPrice decimal.Decimal) (Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Product{}, fmt.Errorf("%w: code must not be empty", perrors.ErrInvalidProductCode)
	}
	if strings.TrimSpace(name) == "" {
		return Product{}, fmt.Errorf("%w: name must not be empty", perrors.ErrInvalidArgument)
	}
	if unitPrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: unit price must be >= 0, got %s", perrors.ErrInvalidArgument, unitPrice)
	}
	return Product{Code: code, Name: name, UnitPrice: unitPrice}, nil
}
