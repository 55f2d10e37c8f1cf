// Package errors provides sentinel errors for stock and pricing operations.
package errors

import "errors"

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidProductCode     = errors.New("invalid product code")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrProductNotFound        = errors.New("product not found")
	ErrProductAlreadyExists   = errors.New("product already exists")
	ErrBatchNotFound          = errors.New("batch not found")
	ErrInsufficientShelfStock = errors.New("insufficient shelf stock")
	ErrDataUnavailable        = errors.New("data unavailable")
)
