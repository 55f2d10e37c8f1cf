package service

import (
	"time"

	"github.com/abgdnv/shelfstock/internal/inventory"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/abgdnv/shelfstock/internal/pricing"
	"github.com/shopspring/decimal"
)

// Dates travel as YYYY-MM-DD strings.

type ProductCreateDto struct {
	Code      string          `json:"code" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=255"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ProductDto struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type BatchReceiveDto struct {
	ProductCode  string `json:"product_code" validate:"required,max=64"`
	PurchaseDate string `json:"purchase_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate   string `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
}

type BatchDto struct {
	ID                int64  `json:"id"`
	ProductCode       string `json:"product_code"`
	PurchaseDate      string `json:"purchase_date"`
	ExpiryDate        string `json:"expiry_date"`
	QuantityRemaining int    `json:"quantity_remaining"`
}

type DiscountCreateDto struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Type         string          `json:"type" validate:"required,oneof=PERCENT AMOUNT"`
	Value        decimal.Decimal `json:"value"`
	StartDate    string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	ProductCodes []string        `json:"product_codes" validate:"required,min=1,dive,required,max=64"`
}

type DiscountDto struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Value        decimal.Decimal `json:"value"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	ProductCodes []string        `json:"product_codes"`
}

// QuantityDto is the body of replenish and deduct requests.
type QuantityDto struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type DrawDto struct {
	BatchID    int64  `json:"batch_id"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiry_date"`
}

type MoveResultDto struct {
	ProductCode string    `json:"product_code"`
	Requested   int       `json:"requested"`
	Moved       int       `json:"moved"`
	Shortfall   int       `json:"shortfall"`
	Fulfilled   bool      `json:"fulfilled"`
	Draws       []DrawDto `json:"draws"`
}

type DeductResultDto struct {
	ProductCode string    `json:"product_code"`
	Deducted    int       `json:"deducted"`
	Remaining   int       `json:"remaining"`
	LowStock    bool      `json:"low_stock"`
	Draws       []DrawDto `json:"draws"`
}

type ShelfLotDto struct {
	BatchID    int64  `json:"batch_id"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiry_date"`
}

type ShelfStatusDto struct {
	ProductCode string        `json:"product_code"`
	Quantity    int           `json:"quantity"`
	Lots        []ShelfLotDto `json:"lots"`
	NextLot     *ShelfLotDto  `json:"next_lot,omitempty"`
}

type QuoteDto struct {
	ProductCode string          `json:"product_code"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	BaseTotal   decimal.Decimal `json:"base_total"`
	Total       decimal.Decimal `json:"total"`
	Saving      decimal.Decimal `json:"saving"`
	Discount    *DiscountDto    `json:"discount,omitempty"`
}

type SaleLineDto struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
}

type SaleDto struct {
	Lines []SaleLineDto `json:"lines" validate:"required,min=1,dive"`
}

type BillLineDto struct {
	QuoteDto
	Remaining int  `json:"remaining"`
	LowStock  bool `json:"low_stock"`
}

// BillDto is the priced result of a checkout.
type BillDto struct {
	Lines  []BillLineDto   `json:"lines"`
	Total  decimal.Decimal `json:"total"`
	Saving decimal.Decimal `json:"saving"`
}

func formatDay(t time.Time) string {
	return t.Format(time.DateOnly)
}

func toProductDto(p model.Product) *ProductDto {
	return &ProductDto{Code: p.Code, Name: p.Name, UnitPrice: p.UnitPrice}
}

func toBatchDto(b model.StockBatch) BatchDto {
	return BatchDto{
		ID:                b.ID,
		ProductCode:       b.ProductCode,
		PurchaseDate:      formatDay(b.PurchaseDate),
		ExpiryDate:        formatDay(b.ExpiryDate),
		QuantityRemaining: b.QuantityRemaining,
	}
}

func toDiscountDto(d model.Discount) *DiscountDto {
	return &DiscountDto{
		ID:           d.ID,
		Name:         d.Name,
		Type:         string(d.Type),
		Value:        d.Value,
		StartDate:    formatDay(d.StartDate),
		EndDate:      formatDay(d.EndDate),
		ProductCodes: d.ProductCodes,
	}
}

func toDrawDtos(draws []inventory.Draw) []DrawDto {
	out := make([]DrawDto, 0, len(draws))
	for _, d := range draws {
		out = append(out, DrawDto{BatchID: d.BatchID, Quantity: d.Quantity, ExpiryDate: formatDay(d.ExpiryDate)})
	}
	return out
}

func toShelfLotDto(l model.ShelfStock) ShelfLotDto {
	return ShelfLotDto{BatchID: l.BatchID, Quantity: l.Quantity, ExpiryDate: formatDay(l.ExpiryDate)}
}

func toQuoteDto(q pricing.Quote) QuoteDto {
	dto := QuoteDto{
		ProductCode: q.ProductCode,
		Quantity:    q.Quantity,
		UnitPrice:   q.UnitPrice,
		BaseTotal:   q.BaseTotal,
		Total:       q.Total,
		Saving:      q.Saving(),
	}
	if q.Discount != nil {
		dto.Discount = toDiscountDto(*q.Discount)
	}
	return dto
}
