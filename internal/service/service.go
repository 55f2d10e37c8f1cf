// Package service exposes the stock, catalog and pricing operations to the transports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/inventory"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/abgdnv/shelfstock/internal/pricing"
	"github.com/abgdnv/shelfstock/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// StockService defines the operations of the stock service.
type StockService interface {
	// CreateProduct adds a product to the catalog.
	// Returns ErrProductAlreadyExists if the code is taken.
	CreateProduct(ctx context.Context, dto ProductCreateDto) (*ProductDto, error)

	// FindProducts returns a page of the catalog ordered by code.
	FindProducts(ctx context.Context, limit, offset int) ([]ProductDto, error)

	// FindProduct returns ErrProductNotFound if no product has the code.
	FindProduct(ctx context.Context, code string) (*ProductDto, error)

	// ReceiveBatch stores a batch delivered to the back store.
	ReceiveBatch(ctx context.Context, dto BatchReceiveDto) (*BatchDto, error)

	// FindBatches lists the back-store batches of a product that still hold stock.
	FindBatches(ctx context.Context, code string) ([]BatchDto, error)

	// CreateDiscount stores a promotion for the listed products.
	CreateDiscount(ctx context.Context, dto DiscountCreateDto) (*DiscountDto, error)

	// FindActiveDiscounts lists the promotions running today for a product.
	FindActiveDiscounts(ctx context.Context, code string) ([]DiscountDto, error)

	// Replenish moves up to quantity units of a product from the back store to the shelf.
	Replenish(ctx context.Context, code string, quantity int) (*MoveResultDto, error)

	// Deduct removes quantity units of a product from the shelf.
	// Returns ErrInsufficientShelfStock if the shelf holds fewer units.
	Deduct(ctx context.Context, code string, quantity int) (*DeductResultDto, error)

	// Sell prices every line, then deducts every line from the shelf.
	Sell(ctx context.Context, dto SaleDto) (*BillDto, error)

	// Quote prices quantity units of a product without selling them.
	Quote(ctx context.Context, code string, quantity int) (*QuoteDto, error)

	// ShelfStatus returns the shelf lots of a product and the lot the next sale draws from.
	ShelfStatus(ctx context.Context, code string) (*ShelfStatusDto, error)
}

// Catalog is the part of the storage provider the service reads and writes directly.
type Catalog interface {
	store.ProductStore
	store.DiscountStore
	CreateBatch(ctx context.Context, b model.StockBatch) (model.StockBatch, error)
	FindNonExhaustedBatches(ctx context.Context, productCode string) ([]model.StockBatch, error)
	GetShelfQuantity(ctx context.Context, productCode string) (int, error)
}

// Inventory is implemented by inventory.Coordinator.
type Inventory interface {
	MoveToShelf(ctx context.Context, productCode string, quantity int) (inventory.MoveResult, error)
	DeductFromShelf(ctx context.Context, productCode string, quantity int) (inventory.DeductResult, error)
	DeductBasket(ctx context.Context, lines []inventory.BasketLine) ([]inventory.DeductResult, error)
	ShelfStatus(ctx context.Context, productCode string) (inventory.ShelfStatus, error)
}

// Service implements StockService.
type Service struct {
	catalog   Catalog
	inventory Inventory
	pricing   pricing.Strategy
	clock     model.Clock
	logger    *slog.Logger

	salesCounter metric.Int64Counter
}

var _ StockService = (*Service)(nil)

func NewService(catalog Catalog, inv Inventory, pricingStrategy pricing.Strategy, clock model.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = model.SystemClock
	}
	meter := otel.Meter("stock-service")
	salesCounter, err := meter.Int64Counter("stock_sales_completed", metric.WithDescription("Checkouts completed"))
	if err != nil {
		panic(fmt.Sprintf("failed to create stock_sales_completed counter: %v", err))
	}
	return &Service{
		catalog:      catalog,
		inventory:    inv,
		pricing:      pricingStrategy,
		clock:        clock,
		logger:       logger.With("component", "service"),
		salesCounter: salesCounter,
	}
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: product code must not be empty", perrors.ErrInvalidProductCode)
	}
	return nil
}

func validateLine(code string, quantity int) error {
	if err := validateCode(code); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity of %s must be positive, got %d", perrors.ErrInvalidQuantity, code, quantity)
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, dto ProductCreateDto) (*ProductDto, error) {
	p, err := model.NewProduct(dto.Code, dto.Name, dto.UnitPrice)
	if err != nil {
		return nil, err
	}
	created, err := s.catalog.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Product created", "product_code", created.Code)
	return toProductDto(created), nil
}

func (s *Service) FindProducts(ctx context.Context, limit, offset int) ([]ProductDto, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit must be positive and offset not negative", perrors.ErrInvalidArgument)
	}
	products, err := s.catalog.FindProducts(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ProductDto, 0, len(products))
	for _, p := range products {
		out = append(out, *toProductDto(p))
	}
	return out, nil
}

func (s *Service) FindProduct(ctx context.Context, code string) (*ProductDto, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	p, err := s.catalog.FindProductByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return toProductDto(p), nil
}

func (s *Service) ReceiveBatch(ctx context.Context, dto BatchReceiveDto) (*BatchDto, error) {
	purchase, err := model.ParseDay(dto.PurchaseDate)
	if err != nil {
		return nil, err
	}
	expiry, err := model.ParseDay(dto.ExpiryDate)
	if err != nil {
		return nil, err
	}
	batch, err := model.NewStockBatch(dto.ProductCode, purchase, expiry, dto.Quantity)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, batch.ProductCode); err != nil {
		return nil, err
	}
	created, err := s.catalog.CreateBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Batch received", "product_code", created.ProductCode, "batch_id", created.ID, "quantity", created.QuantityRemaining)
	out := toBatchDto(created)
	return &out, nil
}

func (s *Service) FindBatches(ctx context.Context, code string) ([]BatchDto, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
		return nil, err
	}
	batches, err := s.catalog.FindNonExhaustedBatches(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]BatchDto, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchDto(b))
	}
	return out, nil
}

func (s *Service) CreateDiscount(ctx context.Context, dto DiscountCreateDto) (*DiscountDto, error) {
	start, err := model.ParseDay(dto.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDay(dto.EndDate)
	if err != nil {
		return nil, err
	}
	d, err := model.NewDiscount(dto.Name, model.DiscountType(dto.Type), dto.Value, start, end, dto.ProductCodes)
	if err != nil {
		return nil, err
	}
	for _, code := range d.ProductCodes {
		if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
			return nil, err
		}
	}
	created, err := s.catalog.CreateDiscount(ctx, d)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Discount created", "discount_id", created.ID, "type", created.Type, "products", created.ProductCodes)
	return toDiscountDto(created), nil
}

func (s *Service) FindActiveDiscounts(ctx context.Context, code string) ([]DiscountDto, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
		return nil, err
	}
	discounts, err := s.catalog.FindActiveDiscounts(ctx, code, model.Day(s.clock.Now()))
	if err != nil {
		return nil, err
	}
	out := make([]DiscountDto, 0, len(discounts))
	for _, d := range discounts {
		out = append(out, *toDiscountDto(d))
	}
	return out, nil
}

func (s *Service) Replenish(ctx context.Context, code string, quantity int) (*MoveResultDto, error) {
	if err := validateLine(code, quantity); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
		return nil, err
	}
	res, err := s.inventory.MoveToShelf(ctx, code, quantity)
	if err != nil {
		return nil, err
	}
	return &MoveResultDto{
		ProductCode: res.ProductCode,
		Requested:   res.Requested,
		Moved:       res.Moved,
		Shortfall:   res.Shortfall,
		Fulfilled:   res.Fulfilled(),
		Draws:       toDrawDtos(res.Draws),
	}, nil
}

func (s *Service) Deduct(ctx context.Context, code string, quantity int) (*DeductResultDto, error) {
	if err := validateLine(code, quantity); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
		return nil, err
	}
	res, err := s.inventory.DeductFromShelf(ctx, code, quantity)
	if err != nil {
		return nil, err
	}
	return toDeductResultDto(res), nil
}

func toDeductResultDto(res inventory.DeductResult) *DeductResultDto {
	return &DeductResultDto{
		ProductCode: res.ProductCode,
		Deducted:    res.Deducted,
		Remaining:   res.Remaining,
		LowStock:    res.LowStock,
		Draws:       toDrawDtos(res.Draws),
	}
}

// Sell checks out a basket. Every line is validated and priced against the shelf as it is before the sale,
// and the basket is rejected with ErrInsufficientShelfStock when the shelf cannot cover the summed quantity
// of a product. All lines are deducted in one transaction, so a failed sale leaves every shelf as it was.
func (s *Service) Sell(ctx context.Context, dto SaleDto) (*BillDto, error) {
	if len(dto.Lines) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one line", perrors.ErrInvalidArgument)
	}
	requested := make(map[string]int, len(dto.Lines))
	products := make(map[string]model.Product, len(dto.Lines))
	for _, line := range dto.Lines {
		if err := validateLine(line.ProductCode, line.Quantity); err != nil {
			return nil, err
		}
	}
	for _, line := range dto.Lines {
		if _, seen := products[line.ProductCode]; !seen {
			p, err := s.catalog.FindProductByCode(ctx, line.ProductCode)
			if err != nil {
				return nil, err
			}
			products[line.ProductCode] = p
		}
		requested[line.ProductCode] += line.Quantity
	}
	for code, qty := range requested {
		onShelf, err := s.catalog.GetShelfQuantity(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("sell %s: %w", code, err)
		}
		if onShelf < qty {
			return nil, fmt.Errorf("%w: %s has %d on the shelf, basket asks for %d", perrors.ErrInsufficientShelfStock, code, onShelf, qty)
		}
	}

	bill := &BillDto{Lines: make([]BillLineDto, 0, len(dto.Lines)), Total: decimal.Zero, Saving: decimal.Zero}
	for _, line := range dto.Lines {
		q, err := s.pricing.Quote(ctx, products[line.ProductCode], line.Quantity)
		if err != nil {
			return nil, err
		}
		bill.Lines = append(bill.Lines, BillLineDto{QuoteDto: toQuoteDto(q)})
		bill.Total = bill.Total.Add(q.Total)
		bill.Saving = bill.Saving.Add(q.Saving())
	}

	basket := make([]inventory.BasketLine, len(dto.Lines))
	for i, line := range dto.Lines {
		basket[i] = inventory.BasketLine{ProductCode: line.ProductCode, Quantity: line.Quantity}
	}
	results, err := s.inventory.DeductBasket(ctx, basket)
	if err != nil {
		s.logger.ErrorContext(ctx, "Sale rolled back", "lines", len(basket), "error", err)
		return nil, err
	}
	for i, res := range results {
		bill.Lines[i].Remaining = res.Remaining
		bill.Lines[i].LowStock = res.LowStock
	}
	s.salesCounter.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Sale completed", "lines", len(bill.Lines), "total", bill.Total.String())
	return bill, nil
}

func (s *Service) Quote(ctx context.Context, code string, quantity int) (*QuoteDto, error) {
	if err := validateLine(code, quantity); err != nil {
		return nil, err
	}
	p, err := s.catalog.FindProductByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	q, err := s.pricing.Quote(ctx, p, quantity)
	if err != nil {
		return nil, err
	}
	out := toQuoteDto(q)
	return &out, nil
}

func (s *Service) ShelfStatus(ctx context.Context, code string) (*ShelfStatusDto, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProductByCode(ctx, code); err != nil {
		return nil, err
	}
	st, err := s.inventory.ShelfStatus(ctx, code)
	if err != nil {
		return nil, err
	}
	out := &ShelfStatusDto{ProductCode: st.ProductCode, Quantity: st.Quantity, Lots: make([]ShelfLotDto, 0, len(st.Lots))}
	for _, l := range st.Lots {
		out.Lots = append(out.Lots, toShelfLotDto(l))
	}
	if st.Next != nil {
		next := toShelfLotDto(*st.Next)
		out.NextLot = &next
	}
	return out, nil
}
