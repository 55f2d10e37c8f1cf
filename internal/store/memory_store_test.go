package store

import (
	"context"
	"errors"
	"testing"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *MemoryStore, code string) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), model.Product{Code: code, Name: code, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
}

func Test_MemoryStore_Products(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	for _, code := range []string{"C", "A", "B"} {
		seedProduct(t, s, code)
	}

	// when
	_, dupErr := s.CreateProduct(ctx, model.Product{Code: "A", Name: "again"})
	_, missingErr := s.FindProductByCode(ctx, "Z")
	page, err := s.FindProducts(ctx, 2, 1)

	// then
	require.ErrorIs(t, dupErr, perrors.ErrProductAlreadyExists)
	require.ErrorIs(t, missingErr, perrors.ErrProductNotFound)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0].Code)
	assert.Equal(t, "C", page[1].Code)
}

func Test_MemoryStore_Batches(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	b1, err := s.CreateBatch(ctx, model.StockBatch{ProductCode: "P1", QuantityRemaining: 5})
	require.NoError(t, err)
	b2, err := s.CreateBatch(ctx, model.StockBatch{ProductCode: "P1", QuantityRemaining: 3})
	require.NoError(t, err)
	_, err = s.CreateBatch(ctx, model.StockBatch{ProductCode: "P2", QuantityRemaining: 3})
	require.NoError(t, err)

	// when
	require.NoError(t, s.UpdateRemainingQuantity(ctx, b1.ID, 0))
	batches, err := s.FindNonExhaustedBatches(ctx, "P1")

	// then
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, b2.ID, batches[0].ID)
	assert.ErrorIs(t, s.UpdateRemainingQuantity(ctx, 99, 1), perrors.ErrBatchNotFound)
	assert.ErrorIs(t, s.UpdateRemainingQuantity(ctx, b2.ID, -1), perrors.ErrInvalidQuantity)
}

func Test_MemoryStore_ShelfLots(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.IncreaseShelfQuantity(ctx, model.ShelfStock{ProductCode: "P1", BatchID: 2, Quantity: 4, ExpiryDate: model.MustParseDay("2024-06-01")}))
	require.NoError(t, s.IncreaseShelfQuantity(ctx, model.ShelfStock{ProductCode: "P1", BatchID: 1, Quantity: 6, ExpiryDate: model.MustParseDay("2024-05-01")}))
	require.NoError(t, s.IncreaseShelfQuantity(ctx, model.ShelfStock{ProductCode: "P1", BatchID: 2, Quantity: 1, ExpiryDate: model.MustParseDay("2024-06-01")}))

	testCases := []struct {
		name        string
		batchID     int64
		delta       int
		expectedErr error
		expectedQty int
	}{
		{name: "decrease within a lot", batchID: 1, delta: 6, expectedQty: 5},
		{name: "lot cannot go negative", batchID: 2, delta: 6, expectedErr: perrors.ErrInsufficientShelfStock, expectedQty: 5},
		{name: "unknown lot", batchID: 3, delta: 1, expectedErr: perrors.ErrInsufficientShelfStock, expectedQty: 5},
		{name: "zero delta rejected", batchID: 2, delta: 0, expectedErr: perrors.ErrInvalidQuantity, expectedQty: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			err := s.DecreaseShelfQuantity(ctx, "P1", tc.batchID, tc.delta)

			// then
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}
			qty, err := s.GetShelfQuantity(ctx, "P1")
			require.NoError(t, err)
			assert.Equal(t, tc.expectedQty, qty)
		})
	}

	lots, err := s.FindShelfLots(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, lots, 1, "empty lots are not listed")
	assert.Equal(t, int64(2), lots[0].BatchID)
	assert.Equal(t, 5, lots[0].Quantity)
}

func Test_MemoryStore_FindActiveDiscounts(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.CreateDiscount(ctx, model.Discount{Name: "march", Type: model.DiscountPercent, Value: decimal.NewFromInt(10),
		StartDate: model.MustParseDay("2024-03-01"), EndDate: model.MustParseDay("2024-03-31"), ProductCodes: []string{"P1", "P2"}})
	require.NoError(t, err)
	_, err = s.CreateDiscount(ctx, model.Discount{Name: "april", Type: model.DiscountAmount, Value: decimal.NewFromInt(5),
		StartDate: model.MustParseDay("2024-04-01"), EndDate: model.MustParseDay("2024-04-30"), ProductCodes: []string{"P1"}})
	require.NoError(t, err)

	testCases := []struct {
		name          string
		productCode   string
		date          string
		expectedNames []string
	}{
		{name: "first day is inclusive", productCode: "P1", date: "2024-03-01", expectedNames: []string{"march"}},
		{name: "last day is inclusive", productCode: "P2", date: "2024-03-31", expectedNames: []string{"march"}},
		{name: "other product", productCode: "P3", date: "2024-03-15", expectedNames: nil},
		{name: "between ranges", productCode: "P1", date: "2024-05-01", expectedNames: nil},
		{name: "second range", productCode: "P1", date: "2024-04-10", expectedNames: []string{"april"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			got, err := s.FindActiveDiscounts(ctx, tc.productCode, model.MustParseDay(tc.date))

			// then
			require.NoError(t, err)
			names := make([]string, 0, len(got))
			for _, d := range got {
				names = append(names, d.Name)
			}
			assert.ElementsMatch(t, tc.expectedNames, names)
		})
	}
}

func Test_MemoryStore_RunInTx_RollsBack(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.CreateBatch(ctx, model.StockBatch{ProductCode: "P1", QuantityRemaining: 5})
	require.NoError(t, err)
	boom := errors.New("boom")

	// when
	err = s.RunInTx(ctx, func(tx InventoryStore) error {
		if err := tx.UpdateRemainingQuantity(ctx, b.ID, 0); err != nil {
			return err
		}
		if err := tx.IncreaseShelfQuantity(ctx, model.ShelfStock{ProductCode: "P1", BatchID: b.ID, Quantity: 5}); err != nil {
			return err
		}
		return tx.RunInTx(ctx, func(InventoryStore) error { return boom })
	})

	// then
	require.ErrorIs(t, err, boom)
	batches, err := s.FindNonExhaustedBatches(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 5, batches[0].QuantityRemaining)
	qty, err := s.GetShelfQuantity(ctx, "P1")
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func Test_MemoryStore_RunInTx_RollbackKeepsBatchReceivedMeanwhile(t *testing.T) {
	// given
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")
	received := make(chan error, 1)

	// when
	err := s.RunInTx(ctx, func(tx InventoryStore) error {
		go func() {
			_, err := s.CreateBatch(ctx, model.StockBatch{ProductCode: "P1", QuantityRemaining: 7})
			received <- err
		}()
		select {
		case <-received:
			return errors.New("batch written while the transaction was open")
		case <-time.After(50 * time.Millisecond):
		}
		return boom
	})

	// then
	require.ErrorIs(t, err, boom)
	require.NoError(t, <-received)
	batches, err := s.FindNonExhaustedBatches(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 7, batches[0].QuantityRemaining)
}
