package model

import "time"

// ShelfStock is a quantity of a product on the shelf that came from one batch.
// The sellable quantity of a product is the sum over its shelf lots.
type ShelfStock struct {
	ProductCode string
	BatchID     int64
	Quantity    int
	ExpiryDate  time.Time
}

// TotalQuantity sums the quantity of the given shelf lots.
func TotalQuantity(lots []ShelfStock) int {
	total := 0
	for _, l := range lots {
		total += l.Quantity
	}
	return total
}
