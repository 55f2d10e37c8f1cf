package model

import (
	"strings"
	"testing"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	testCases := []struct {
		name        string
		code        string
		productName string
		price       decimal.Decimal
		expectedErr error
	}{
		{name: "valid", code: " MILK ", productName: "Milk", price: decimal.RequireFromString("1.25")},
		{name: "free product", code: "BAG", productName: "Bag", price: decimal.Zero},
		{name: "blank code", code: "  ", productName: "Milk", price: decimal.NewFromInt(1), expectedErr: perrors.ErrInvalidProductCode},
		{name: "blank name", code: "MILK", productName: "", price: decimal.NewFromInt(1), expectedErr: perrors.ErrInvalidArgument},
		{name: "negative price", code: "MILK", productName: "Milk", price: decimal.NewFromInt(-1), expectedErr: perrors.ErrInvalidArgument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			p, err := NewProduct(tc.code, tc.productName, tc.price)

			// then
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tc.code), p.Code)
		})
	}
}

func TestNewStockBatch(t *testing.T) {
	purchased := MustParseDay("2024-01-01")
	testCases := []struct {
		name        string
		expires     time.Time
		quantity    int
		expectedErr error
	}{
		{name: "valid", expires: MustParseDay("2024-02-01"), quantity: 10},
		{name: "expires on purchase day", expires: purchased, quantity: 1},
		{name: "expires before purchase", expires: MustParseDay("2023-12-31"), quantity: 1, expectedErr: perrors.ErrInvalidArgument},
		{name: "zero quantity", expires: MustParseDay("2024-02-01"), quantity: 0, expectedErr: perrors.ErrInvalidQuantity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			b, err := NewStockBatch("P1", purchased, tc.expires, tc.quantity)

			// then
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.quantity, b.QuantityRemaining)
			assert.False(t, b.Exhausted())
		})
	}
}

func TestNewStockBatch_TruncatesToDay(t *testing.T) {
	// when
	b, err := NewStockBatch("P1",
		time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 1)

	// then
	require.NoError(t, err)
	assert.Equal(t, MustParseDay("2024-01-01"), b.ExpiryDate)
}

func TestNewDiscount(t *testing.T) {
	start, end := MustParseDay("2024-01-01"), MustParseDay("2024-01-31")
	testCases := []struct {
		name        string
		typ         DiscountType
		value       int64
		end         time.Time
		expectedErr error
	}{
		{name: "percent", typ: DiscountPercent, value: 15, end: end},
		{name: "full percent", typ: DiscountPercent, value: 100, end: end},
		{name: "percent above 100", typ: DiscountPercent, value: 101, end: end, expectedErr: perrors.ErrInvalidArgument},
		{name: "negative amount", typ: DiscountAmount, value: -5, end: end, expectedErr: perrors.ErrInvalidArgument},
		{name: "unknown type", typ: "BOGO", value: 1, end: end, expectedErr: perrors.ErrInvalidArgument},
		{name: "ends before start", typ: DiscountAmount, value: 1, end: MustParseDay("2023-12-31"), expectedErr: perrors.ErrInvalidArgument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			_, err := NewDiscount("promo", tc.typ, decimal.NewFromInt(tc.value), start, tc.end, []string{"P1"})

			// then
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDiscount_IsActiveOn(t *testing.T) {
	d := Discount{StartDate: MustParseDay("2024-01-01"), EndDate: MustParseDay("2024-01-31")}

	assert.False(t, d.IsActiveOn(MustParseDay("2023-12-31")))
	assert.True(t, d.IsActiveOn(MustParseDay("2024-01-01")))
	assert.True(t, d.IsActiveOn(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, d.IsActiveOn(MustParseDay("2024-02-01")))
}

func TestDiscount_Apply(t *testing.T) {
	total := decimal.NewFromInt(200)
	testCases := []struct {
		name     string
		discount Discount
		expected string
	}{
		{name: "percent", discount: Discount{Type: DiscountPercent, Value: decimal.NewFromInt(15)}, expected: "170"},
		{name: "amount", discount: Discount{Type: DiscountAmount, Value: decimal.NewFromInt(20)}, expected: "180"},
		{name: "amount above total is not clamped", discount: Discount{Type: DiscountAmount, Value: decimal.NewFromInt(250)}, expected: "-50"},
		{name: "unknown type", discount: Discount{Type: "BOGO", Value: decimal.NewFromInt(20)}, expected: "200"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tc.expected).Equal(tc.discount.Apply(total)),
				"got %s", tc.discount.Apply(total))
		})
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDay("29/02/2024")
	require.ErrorIs(t, err, perrors.ErrInvalidArgument)
}

func TestTotalQuantity(t *testing.T) {
	lots := []ShelfStock{{Quantity: 3}, {Quantity: 4}}
	assert.Equal(t, 7, TotalQuantity(lots))
	assert.Equal(t, 0, TotalQuantity(nil))
}

func TestFixedClock(t *testing.T) {
	now := MustParseDay("2024-01-05")
	assert.Equal(t, now, FixedClock(now).Now())
}
