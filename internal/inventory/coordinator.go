// Package inventory moves stock from the back store to the shelf and off the shelf on sale.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abgdnv/shelfstock/internal/allocation"
	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/abgdnv/shelfstock/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLowStockThreshold is the shelf quantity below which observers are alerted.
const DefaultLowStockThreshold = 50

// Config tunes the coordinator. Zero values mean the defaults.
type Config struct {
	LowStockThreshold int
	NotifyMode        NotifyMode
}

// Draw is the part of a request served by one batch.
type Draw struct {
	BatchID    int64
	Quantity   int
	ExpiryDate time.Time
}

// MoveResult reports what a replenishment actually moved. Shortfall is Requested - Moved.
type MoveResult struct {
	ProductCode string
	Requested   int
	Moved       int
	Shortfall   int
	Draws       []Draw
}

// Fulfilled reports whether the whole request was moved.
func (r MoveResult) Fulfilled() bool { return r.Shortfall == 0 }

// DeductResult reports a shelf deduction and whether it raised a low-stock alert.
type DeductResult struct {
	ProductCode string
	Deducted    int
	Remaining   int
	LowStock    bool
	Draws       []Draw
}

// ShelfStatus is the shelf content of a product. Next is the lot the next sale draws from.
type ShelfStatus struct {
	ProductCode string
	Quantity    int
	Lots        []model.ShelfStock
	Next        *model.ShelfStock
}

// Coordinator applies the allocation strategy to move and sell stock.
// Each operation runs in a single store transaction; observers are called after it commits.
type Coordinator struct {
	store     store.InventoryStore
	strategy  allocation.ShelfStrategy
	observers []StockObserver
	threshold int
	mode      NotifyMode
	logger    *slog.Logger
	tracer    trace.Tracer

	unitsMoved     metric.Int64Counter
	shortfallUnits metric.Int64Counter
	unitsSold      metric.Int64Counter
	lowStockAlerts metric.Int64Counter
}

// NewCoordinator creates the coordinator. Observers are notified in the order given.
func NewCoordinator(st store.InventoryStore, strategy allocation.ShelfStrategy, cfg Config, logger *slog.Logger, observers ...StockObserver) *Coordinator {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = DefaultLowStockThreshold
	}
	if cfg.NotifyMode == "" {
		cfg.NotifyMode = NotifyEvery
	}

	meter := otel.Meter("stock-service")
	c := &Coordinator{
		store:     st,
		strategy:  strategy,
		observers: observers,
		threshold: cfg.LowStockThreshold,
		mode:      cfg.NotifyMode,
		logger:    logger.With("component", "inventory", "strategy", strategy.Name()),
		tracer:    otel.Tracer("stock-service/inventory"),
	}
	c.unitsMoved = mustCounter(meter, "stock_units_moved", "Units moved from the back store to the shelf")
	c.shortfallUnits = mustCounter(meter, "stock_replenish_shortfall_units", "Requested units a replenishment could not move")
	c.unitsSold = mustCounter(meter, "stock_units_sold", "Units deducted from the shelf")
	c.lowStockAlerts = mustCounter(meter, "stock_low_alerts", "Low-stock notifications raised")
	return c
}

func mustCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		panic(fmt.Sprintf("failed to create %s counter: %v", name, err))
	}
	return counter
}

func validateRequest(productCode string, quantity int) error {
	if strings.TrimSpace(productCode) == "" {
		return fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", perrors.ErrInvalidQuantity, quantity)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// MoveToShelf draws up to quantity units from the back store onto the shelf, one batch at a time
// in strategy order. Running out of back-store stock is not an error: the result carries the shortfall.
func (c *Coordinator) MoveToShelf(ctx context.Context, productCode string, quantity int) (res MoveResult, err error) {
	if err := validateRequest(productCode, quantity); err != nil {
		return MoveResult{}, err
	}
	ctx, span := c.tracer.Start(ctx, "inventory.MoveToShelf", trace.WithAttributes(
		attribute.String("product.code", productCode),
		attribute.Int("quantity.requested", quantity),
	))
	defer func() { endSpan(span, err) }()

	res = MoveResult{ProductCode: productCode, Requested: quantity}
	err = c.store.RunInTx(ctx, func(tx store.InventoryStore) error {
		res.Moved, res.Draws = 0, nil

		candidates, err := tx.FindNonExhaustedBatches(ctx, productCode)
		if err != nil {
			return err
		}
		remaining := quantity
		for remaining > 0 && len(candidates) > 0 {
			batch, ok := c.strategy.SelectBatchFromBackStore(candidates)
			if !ok {
				break
			}
			used := min(batch.QuantityRemaining, remaining)
			if err := tx.UpdateRemainingQuantity(ctx, batch.ID, batch.QuantityRemaining-used); err != nil {
				return err
			}
			lot := model.ShelfStock{ProductCode: productCode, BatchID: batch.ID, Quantity: used, ExpiryDate: batch.ExpiryDate}
			if err := tx.IncreaseShelfQuantity(ctx, lot); err != nil {
				return err
			}
			c.logger.DebugContext(ctx, "Batch drawn to shelf", "product_code", productCode, "batch_id", batch.ID, "quantity", used)

			remaining -= used
			res.Moved += used
			res.Draws = append(res.Draws, Draw{BatchID: batch.ID, Quantity: used, ExpiryDate: batch.ExpiryDate})
			candidates = consumeBatch(candidates, batch.ID, used)
		}
		return nil
	})
	if err != nil {
		return MoveResult{}, fmt.Errorf("move %d of %s to shelf: %w", quantity, productCode, err)
	}
	res.Shortfall = res.Requested - res.Moved

	attrs := metric.WithAttributes(attribute.String("product.code", productCode))
	c.unitsMoved.Add(ctx, int64(res.Moved), attrs)
	span.SetAttributes(attribute.Int("quantity.moved", res.Moved))
	if res.Shortfall > 0 {
		c.shortfallUnits.Add(ctx, int64(res.Shortfall), attrs)
		c.logger.WarnContext(ctx, "Replenishment partially fulfilled",
			"product_code", productCode, "requested", res.Requested, "moved", res.Moved, "shortfall", res.Shortfall)
	} else {
		c.logger.InfoContext(ctx, "Shelf replenished", "product_code", productCode, "moved", res.Moved, "batches", len(res.Draws))
	}
	return res, nil
}

// consumeBatch lowers the batch's remaining quantity and drops it once exhausted.
func consumeBatch(candidates []model.StockBatch, batchID int64, used int) []model.StockBatch {
	out := candidates[:0]
	for _, b := range candidates {
		if b.ID == batchID {
			b.QuantityRemaining -= used
			if b.Exhausted() {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// BasketLine is one product and quantity of a basket deduction.
type BasketLine struct {
	ProductCode string
	Quantity    int
}

// DeductFromShelf takes quantity units off the shelf, lot by lot in strategy order, and alerts the
// observers if the shelf is left below the low-stock threshold. A deduction larger than the shelf
// holds is rejected with ErrInsufficientShelfStock and changes nothing.
func (c *Coordinator) DeductFromShelf(ctx context.Context, productCode string, quantity int) (res DeductResult, err error) {
	if err := validateRequest(productCode, quantity); err != nil {
		return DeductResult{}, err
	}
	ctx, span := c.tracer.Start(ctx, "inventory.DeductFromShelf", trace.WithAttributes(
		attribute.String("product.code", productCode),
		attribute.Int("quantity.requested", quantity),
	))
	defer func() { endSpan(span, err) }()

	var before int
	err = c.store.RunInTx(ctx, func(tx store.InventoryStore) error {
		res, before, err = c.deduct(ctx, tx, productCode, quantity)
		return err
	})
	if err != nil {
		return DeductResult{}, err
	}
	span.SetAttributes(attribute.Int("quantity.remaining", res.Remaining))
	return c.afterDeduct(ctx, res, before), nil
}

// DeductBasket deducts every line in one transaction. If any line fails, no line is deducted.
// Lines of the same product are deducted in order, each seeing the shelf the previous one left.
func (c *Coordinator) DeductBasket(ctx context.Context, lines []BasketLine) (results []DeductResult, err error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: basket is empty", perrors.ErrInvalidArgument)
	}
	for _, l := range lines {
		if err := validateRequest(l.ProductCode, l.Quantity); err != nil {
			return nil, err
		}
	}
	ctx, span := c.tracer.Start(ctx, "inventory.DeductBasket", trace.WithAttributes(attribute.Int("basket.lines", len(lines))))
	defer func() { endSpan(span, err) }()

	befores := make([]int, len(lines))
	err = c.store.RunInTx(ctx, func(tx store.InventoryStore) error {
		results = make([]DeductResult, len(lines))
		for i, l := range lines {
			res, before, err := c.deduct(ctx, tx, l.ProductCode, l.Quantity)
			if err != nil {
				return fmt.Errorf("basket line %d: %w", i, err)
			}
			results[i], befores[i] = res, before
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i] = c.afterDeduct(ctx, results[i], befores[i])
	}
	return results, nil
}

// deduct draws quantity units off the shelf inside tx and returns the shelf quantity it found.
func (c *Coordinator) deduct(ctx context.Context, tx store.InventoryStore, productCode string, quantity int) (DeductResult, int, error) {
	res := DeductResult{ProductCode: productCode, Deducted: quantity}
	lots, err := tx.FindShelfLots(ctx, productCode)
	if err != nil {
		return DeductResult{}, 0, fmt.Errorf("deduct %d of %s from shelf: %w", quantity, productCode, err)
	}
	before := model.TotalQuantity(lots)
	if before < quantity {
		return DeductResult{}, 0, fmt.Errorf("deduct %d of %s from shelf: %w: %d requested, %d on shelf",
			quantity, productCode, perrors.ErrInsufficientShelfStock, quantity, before)
	}
	remaining := quantity
	for remaining > 0 {
		lot, ok := c.strategy.SelectBatchFromShelf(lots)
		if !ok {
			return DeductResult{}, 0, fmt.Errorf("deduct %d of %s from shelf: %w: shelf ran out with %d still to deduct",
				quantity, productCode, perrors.ErrInsufficientShelfStock, remaining)
		}
		used := min(lot.Quantity, remaining)
		if err := tx.DecreaseShelfQuantity(ctx, productCode, lot.BatchID, used); err != nil {
			return DeductResult{}, 0, fmt.Errorf("deduct %d of %s from shelf: %w", quantity, productCode, err)
		}
		remaining -= used
		res.Draws = append(res.Draws, Draw{BatchID: lot.BatchID, Quantity: used, ExpiryDate: lot.ExpiryDate})
		lots = consumeLot(lots, lot.BatchID, used)
	}
	res.Remaining = before - quantity
	return res, before, nil
}

// afterDeduct records a committed deduction and alerts the observers when the shelf runs low.
func (c *Coordinator) afterDeduct(ctx context.Context, res DeductResult, before int) DeductResult {
	c.unitsSold.Add(ctx, int64(res.Deducted), metric.WithAttributes(attribute.String("product.code", res.ProductCode)))
	if c.mode.shouldNotify(before, res.Remaining, c.threshold) {
		res.LowStock = true
		c.notifyLow(ctx, res.ProductCode, res.Remaining)
	}
	c.logger.InfoContext(ctx, "Shelf stock deducted", "product_code", res.ProductCode, "deducted", res.Deducted, "remaining", res.Remaining)
	return res
}

func consumeLot(lots []model.ShelfStock, batchID int64, used int) []model.ShelfStock {
	out := lots[:0]
	for _, l := range lots {
		if l.BatchID == batchID {
			l.Quantity -= used
			if l.Quantity <= 0 {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) notifyLow(ctx context.Context, productCode string, remaining int) {
	c.lowStockAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("product.code", productCode)))
	c.logger.WarnContext(ctx, "Shelf stock low", "product_code", productCode, "remaining", remaining, "threshold", c.threshold)
	for _, o := range c.observers {
		c.callObserver(ctx, o, productCode, remaining)
	}
}

func (c *Coordinator) callObserver(ctx context.Context, o StockObserver, productCode string, remaining int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "Stock observer panicked", "product_code", productCode, "panic", r)
		}
	}()
	o.OnStockLow(ctx, productCode, remaining)
}

// NextShelfLot returns the shelf lot the next sale of the product would draw from.
func (c *Coordinator) NextShelfLot(ctx context.Context, productCode string) (model.ShelfStock, bool, error) {
	if strings.TrimSpace(productCode) == "" {
		return model.ShelfStock{}, false, fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	lots, err := c.store.FindShelfLots(ctx, productCode)
	if err != nil {
		return model.ShelfStock{}, false, fmt.Errorf("next shelf lot of %s: %w", productCode, err)
	}
	lot, ok := c.strategy.SelectBatchFromShelf(lots)
	return lot, ok, nil
}

// ShelfStatus returns the lots on the shelf, their total, and the lot the next sale draws from.
func (c *Coordinator) ShelfStatus(ctx context.Context, productCode string) (ShelfStatus, error) {
	if strings.TrimSpace(productCode) == "" {
		return ShelfStatus{}, fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	lots, err := c.store.FindShelfLots(ctx, productCode)
	if err != nil {
		return ShelfStatus{}, fmt.Errorf("shelf status of %s: %w", productCode, err)
	}
	status := ShelfStatus{ProductCode: productCode, Quantity: model.TotalQuantity(lots), Lots: lots}
	if next, ok := c.strategy.SelectBatchFromShelf(lots); ok {
		status.Next = &next
	}
	return status, nil
}
