package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the PostgreSQL Store.
type PgStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a new instance of Store using a PostgreSQL connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, perrors.ErrDataUnavailable, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (p *PgStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

func (p *PgStore) CreateProduct(ctx context.Context, prod model.Product) (model.Product, error) {
	_, err := p.q.Exec(ctx,
		`INSERT INTO products (code, name, unit_price) VALUES ($1, $2, $3::numeric)`,
		prod.Code, prod.Name, prod.UnitPrice.String())
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return model.Product{}, fmt.Errorf("product %s: %w", prod.Code, perrors.ErrProductAlreadyExists)
		}
		return model.Product{}, unavailable("create product "+prod.Code, err)
	}
	return prod, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		prod  model.Product
		price string
	)
	if err := row.Scan(&prod.Code, &prod.Name, &price); err != nil {
		return model.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("parse unit price of %s: %w", prod.Code, err)
	}
	prod.UnitPrice = d
	return prod, nil
}

func (p *PgStore) FindProductByCode(ctx context.Context, code string) (model.Product, error) {
	prod, err := scanProduct(p.q.QueryRow(ctx,
		`SELECT code, name, unit_price::text FROM products WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, fmt.Errorf("product %s: %w", code, perrors.ErrProductNotFound)
		}
		return model.Product{}, unavailable("find product "+code, err)
	}
	return prod, nil
}

func (p *PgStore) FindProducts(ctx context.Context, limit, offset int) ([]model.Product, error) {
	rows, err := p.q.Query(ctx,
		`SELECT code, name, unit_price::text FROM products ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, unavailable("find products", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, unavailable("scan product", err)
		}
		products = append(products, prod)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find products", err)
	}
	return products, nil
}

func (p *PgStore) CreateBatch(ctx context.Context, b model.StockBatch) (model.StockBatch, error) {
	err := p.q.QueryRow(ctx,
		`INSERT INTO stock_batches (product_code, purchase_date, expiry_date, quantity_remaining)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		b.ProductCode, b.PurchaseDate, b.ExpiryDate, b.QuantityRemaining).Scan(&b.ID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return model.StockBatch{}, fmt.Errorf("product %s: %w", b.ProductCode, perrors.ErrProductNotFound)
		}
		return model.StockBatch{}, unavailable("create batch for "+b.ProductCode, err)
	}
	return b, nil
}

// FindNonExhaustedBatches locks the returned rows when called inside RunInTx, so two
// replenishments of the same product cannot draw the same units.
func (p *PgStore) FindNonExhaustedBatches(ctx context.Context, productCode string) ([]model.StockBatch, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, product_code, purchase_date, expiry_date, quantity_remaining
		 FROM stock_batches
		 WHERE product_code = $1 AND quantity_remaining > 0
		 ORDER BY id
		 FOR UPDATE`, productCode)
	if err != nil {
		return nil, unavailable("find non-exhausted batches for "+productCode, err)
	}
	defer rows.Close()

	batches := make([]model.StockBatch, 0)
	for rows.Next() {
		var b model.StockBatch
		if err := rows.Scan(&b.ID, &b.ProductCode, &b.PurchaseDate, &b.ExpiryDate, &b.QuantityRemaining); err != nil {
			return nil, unavailable("scan batch for "+productCode, err)
		}
		b.PurchaseDate, b.ExpiryDate = model.Day(b.PurchaseDate), model.Day(b.ExpiryDate)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find non-exhausted batches for "+productCode, err)
	}
	return batches, nil
}

func (p *PgStore) UpdateRemainingQuantity(ctx context.Context, batchID int64, newQuantity int) error {
	if newQuantity < 0 {
		return fmt.Errorf("%w: remaining quantity of batch %d must not be negative", perrors.ErrInvalidQuantity, batchID)
	}
	tag, err := p.q.Exec(ctx,
		`UPDATE stock_batches SET quantity_remaining = $2 WHERE id = $1`, batchID, newQuantity)
	if err != nil {
		return unavailable(fmt.Sprintf("update remaining quantity of batch %d", batchID), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %d: %w", batchID, perrors.ErrBatchNotFound)
	}
	return nil
}

func (p *PgStore) GetShelfQuantity(ctx context.Context, productCode string) (int, error) {
	var total int64
	err := p.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM shelf_stock WHERE product_code = $1`, productCode).Scan(&total)
	if err != nil {
		return 0, unavailable("get shelf quantity for "+productCode, err)
	}
	return int(total), nil
}

func (p *PgStore) FindShelfLots(ctx context.Context, productCode string) ([]model.ShelfStock, error) {
	rows, err := p.q.Query(ctx,
		`SELECT product_code, batch_id, quantity, expiry_date
		 FROM shelf_stock
		 WHERE product_code = $1 AND quantity > 0
		 ORDER BY expiry_date, batch_id
		 FOR UPDATE`, productCode)
	if err != nil {
		return nil, unavailable("find shelf lots for "+productCode, err)
	}
	defer rows.Close()

	lots := make([]model.ShelfStock, 0)
	for rows.Next() {
		var l model.ShelfStock
		if err := rows.Scan(&l.ProductCode, &l.BatchID, &l.Quantity, &l.ExpiryDate); err != nil {
			return nil, unavailable("scan shelf lot for "+productCode, err)
		}
		l.ExpiryDate = model.Day(l.ExpiryDate)
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find shelf lots for "+productCode, err)
	}
	return lots, nil
}

func (p *PgStore) IncreaseShelfQuantity(ctx context.Context, lot model.ShelfStock) error {
	if lot.Quantity <= 0 {
		return fmt.Errorf("%w: shelf increase must be positive, got %d", perrors.ErrInvalidQuantity, lot.Quantity)
	}
	_, err := p.q.Exec(ctx,
		`INSERT INTO shelf_stock (product_code, batch_id, quantity, expiry_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_code, batch_id)
		 DO UPDATE SET quantity = shelf_stock.quantity + EXCLUDED.quantity, updated_at = now()`,
		lot.ProductCode, lot.BatchID, lot.Quantity, lot.ExpiryDate)
	if err != nil {
		return unavailable(fmt.Sprintf("increase shelf lot %s/%d", lot.ProductCode, lot.BatchID), err)
	}
	return nil
}

func (p *PgStore) DecreaseShelfQuantity(ctx context.Context, productCode string, batchID int64, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("%w: shelf decrease must be positive, got %d", perrors.ErrInvalidQuantity, delta)
	}
	tag, err := p.q.Exec(ctx,
		`UPDATE shelf_stock SET quantity = quantity - $3, updated_at = now()
		 WHERE product_code = $1 AND batch_id = $2 AND quantity >= $3`,
		productCode, batchID, delta)
	if err != nil {
		return unavailable(fmt.Sprintf("decrease shelf lot %s/%d", productCode, batchID), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shelf lot %s/%d: %w", productCode, batchID, perrors.ErrInsufficientShelfStock)
	}
	return nil
}

func (p *PgStore) CreateDiscount(ctx context.Context, d model.Discount) (model.Discount, error) {
	err := p.withTx(ctx, func(tx *PgStore) error {
		err := tx.q.QueryRow(ctx,
			`INSERT INTO discounts (name, type, value, start_date, end_date)
			 VALUES ($1, $2, $3::numeric, $4, $5) RETURNING id`,
			d.Name, string(d.Type), d.Value.String(), d.StartDate, d.EndDate).Scan(&d.ID)
		if err != nil {
			return unavailable("create discount "+d.Name, err)
		}
		for _, code := range d.ProductCodes {
			_, err := tx.q.Exec(ctx,
				`INSERT INTO discount_products (discount_id, product_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				d.ID, code)
			if err != nil {
				if pgCode(err) == pgForeignKeyViolation {
					return fmt.Errorf("product %s: %w", code, perrors.ErrProductNotFound)
				}
				return unavailable(fmt.Sprintf("link discount %d to %s", d.ID, code), err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Discount{}, err
	}
	return d, nil
}

func (p *PgStore) FindActiveDiscounts(ctx context.Context, productCode string, date time.Time) ([]model.Discount, error) {
	rows, err := p.q.Query(ctx,
		`SELECT d.id, d.name, d.type, d.value::text, d.start_date, d.end_date,
		        ARRAY(SELECT dp.product_code FROM discount_products dp WHERE dp.discount_id = d.id ORDER BY dp.product_code)
		 FROM discounts d
		 WHERE d.id IN (SELECT discount_id FROM discount_products WHERE product_code = $1)
		   AND $2::date BETWEEN d.start_date AND d.end_date
		 ORDER BY d.id`, productCode, model.Day(date))
	if err != nil {
		return nil, unavailable("find active discounts for "+productCode, err)
	}
	defer rows.Close()

	discounts := make([]model.Discount, 0)
	for rows.Next() {
		var (
			d     model.Discount
			typ   string
			value string
		)
		if err := rows.Scan(&d.ID, &d.Name, &typ, &value, &d.StartDate, &d.EndDate, &d.ProductCodes); err != nil {
			return nil, unavailable("scan discount for "+productCode, err)
		}
		d.Type = model.DiscountType(typ)
		if d.Value, err = decimal.NewFromString(value); err != nil {
			return nil, unavailable(fmt.Sprintf("parse value of discount %d", d.ID), err)
		}
		d.StartDate, d.EndDate = model.Day(d.StartDate), model.Day(d.EndDate)
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find active discounts for "+productCode, err)
	}
	return discounts, nil
}

// RunInTx runs fn inside a database transaction. A nested call joins the outer transaction.
func (p *PgStore) RunInTx(ctx context.Context, fn func(tx InventoryStore) error) error {
	return p.withTx(ctx, func(tx *PgStore) error { return fn(tx) })
}

func (p *PgStore) withTx(ctx context.Context, fn func(tx *PgStore) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin transaction", err)
	}

	if err := fn(&PgStore{pool: p.pool, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, unavailable("rollback transaction", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}
