package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
)

type lotKey struct {
	productCode string
	batchID     int64
}

// MemoryStore is an in-memory Store for tests and single-process demos.
// Transactions are serialized and roll back by restoring a snapshot of batches and shelf lots.
// Batch and shelf writes made outside RunInTx wait for the open transaction to finish.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	products  map[string]model.Product
	batches   map[int64]model.StockBatch
	lots      map[lotKey]model.ShelfStock
	discounts map[int64]model.Discount

	nextBatchID    int64
	nextDiscountID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]model.Product),
		batches:   make(map[int64]model.StockBatch),
		lots:      make(map[lotKey]model.ShelfStock),
		discounts: make(map[int64]model.Discount),
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) CreateProduct(_ context.Context, p model.Product) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.Code]; ok {
		return model.Product{}, fmt.Errorf("product %s: %w", p.Code, perrors.ErrProductAlreadyExists)
	}
	m.products[p.Code] = p
	return p, nil
}

func (m *MemoryStore) FindProductByCode(_ context.Context, code string) (model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[code]
	if !ok {
		return model.Product{}, fmt.Errorf("product %s: %w", code, perrors.ErrProductNotFound)
	}
	return p, nil
}

func (m *MemoryStore) FindProducts(_ context.Context, limit, offset int) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := slices.Sorted(maps.Keys(m.products))
	if offset >= len(codes) {
		return []model.Product{}, nil
	}
	codes = codes[offset:]
	if limit > 0 && limit < len(codes) {
		codes = codes[:limit]
	}
	out := make([]model.Product, 0, len(codes))
	for _, c := range codes {
		out = append(out, m.products[c])
	}
	return out, nil
}

func (m *MemoryStore) CreateBatch(_ context.Context, b model.StockBatch) (model.StockBatch, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.createBatch(b)
}

func (m *MemoryStore) createBatch(b model.StockBatch) (model.StockBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBatchID++
	b.ID = m.nextBatchID
	m.batches[b.ID] = b
	return b, nil
}

func (m *MemoryStore) FindNonExhaustedBatches(_ context.Context, productCode string) ([]model.StockBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.StockBatch, 0)
	for _, b := range m.batches {
		if b.ProductCode == productCode && !b.Exhausted() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateRemainingQuantity(_ context.Context, batchID int64, newQuantity int) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.updateRemainingQuantity(batchID, newQuantity)
}

func (m *MemoryStore) updateRemainingQuantity(batchID int64, newQuantity int) error {
	if newQuantity < 0 {
		return fmt.Errorf("%w: remaining quantity of batch %d must not be negative", perrors.ErrInvalidQuantity, batchID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d: %w", batchID, perrors.ErrBatchNotFound)
	}
	b.QuantityRemaining = newQuantity
	m.batches[batchID] = b
	return nil
}

func (m *MemoryStore) GetShelfQuantity(_ context.Context, productCode string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for k, l := range m.lots {
		if k.productCode == productCode {
			total += l.Quantity
		}
	}
	return total, nil
}

func (m *MemoryStore) FindShelfLots(_ context.Context, productCode string) ([]model.ShelfStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ShelfStock, 0)
	for k, l := range m.lots {
		if k.productCode == productCode && l.Quantity > 0 {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].BatchID < out[j].BatchID
	})
	return out, nil
}

func (m *MemoryStore) IncreaseShelfQuantity(_ context.Context, lot model.ShelfStock) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.increaseShelfQuantity(lot)
}

func (m *MemoryStore) increaseShelfQuantity(lot model.ShelfStock) error {
	if lot.Quantity <= 0 {
		return fmt.Errorf("%w: shelf increase must be positive, got %d", perrors.ErrInvalidQuantity, lot.Quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := lotKey{lot.ProductCode, lot.BatchID}
	cur, ok := m.lots[k]
	if !ok {
		cur = model.ShelfStock{ProductCode: lot.ProductCode, BatchID: lot.BatchID, ExpiryDate: model.Day(lot.ExpiryDate)}
	}
	cur.Quantity += lot.Quantity
	m.lots[k] = cur
	return nil
}

func (m *MemoryStore) DecreaseShelfQuantity(_ context.Context, productCode string, batchID int64, delta int) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.decreaseShelfQuantity(productCode, batchID, delta)
}

func (m *MemoryStore) decreaseShelfQuantity(productCode string, batchID int64, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("%w: shelf decrease must be positive, got %d", perrors.ErrInvalidQuantity, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := lotKey{productCode, batchID}
	cur, ok := m.lots[k]
	if !ok || cur.Quantity < delta {
		return fmt.Errorf("shelf lot %s/%d: %w", productCode, batchID, perrors.ErrInsufficientShelfStock)
	}
	cur.Quantity -= delta
	m.lots[k] = cur
	return nil
}

func (m *MemoryStore) CreateDiscount(_ context.Context, d model.Discount) (model.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDiscountID++
	d.ID = m.nextDiscountID
	d.ProductCodes = slices.Clone(d.ProductCodes)
	m.discounts[d.ID] = d
	return d, nil
}

func (m *MemoryStore) FindActiveDiscounts(_ context.Context, productCode string, date time.Time) ([]model.Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Discount, 0)
	for _, d := range m.discounts {
		if d.IsActiveOn(date) && slices.Contains(d.ProductCodes, productCode) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RunInTx runs fn with exclusive access to the inventory. Batch and shelf changes made by fn
// are undone if it fails.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(tx InventoryStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	batches, lots := maps.Clone(m.batches), maps.Clone(m.lots)
	m.mu.RUnlock()

	if err := fn(memoryTx{m}); err != nil {
		m.mu.Lock()
		m.batches, m.lots = batches, lots
		m.mu.Unlock()
		return err
	}
	return nil
}

// memoryTx is the view handed to RunInTx callbacks. It already holds txMu, so its writes skip it.
// Nested RunInTx joins the outer transaction.
type memoryTx struct {
	*MemoryStore
}

func (t memoryTx) CreateBatch(_ context.Context, b model.StockBatch) (model.StockBatch, error) {
	return t.createBatch(b)
}

func (t memoryTx) UpdateRemainingQuantity(_ context.Context, batchID int64, newQuantity int) error {
	return t.updateRemainingQuantity(batchID, newQuantity)
}

func (t memoryTx) IncreaseShelfQuantity(_ context.Context, lot model.ShelfStock) error {
	return t.increaseShelfQuantity(lot)
}

func (t memoryTx) DecreaseShelfQuantity(_ context.Context, productCode string, batchID int64, delta int) error {
	return t.decreaseShelfQuantity(productCode, batchID, delta)
}

func (t memoryTx) RunInTx(_ context.Context, fn func(tx InventoryStore) error) error {
	return fn(t)
}
