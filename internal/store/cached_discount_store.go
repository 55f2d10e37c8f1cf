package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/redis/go-redis/v9"
)

// keyActiveDiscounts is a hash per product whose fields are dates.
const keyActiveDiscounts = "stock:discounts:active:%s"

// CachedDiscountStore is a read-through Redis cache in front of a DiscountStore.
// Redis failures are logged and the call falls through to the wrapped store.
type CachedDiscountStore struct {
	DiscountStore
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ DiscountStore = (*CachedDiscountStore)(nil)

// NewCachedDiscountStore wraps next with a cache whose entries live for ttl.
func NewCachedDiscountStore(next DiscountStore, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedDiscountStore {
	return &CachedDiscountStore{
		DiscountStore: next,
		rdb:           rdb,
		ttl:           ttl,
		logger:        logger.With("component", "discount-cache"),
	}
}

// CreateDiscount stores the discount and drops the cached entries of every linked product.
func (c *CachedDiscountStore) CreateDiscount(ctx context.Context, d model.Discount) (model.Discount, error) {
	created, err := c.DiscountStore.CreateDiscount(ctx, d)
	if err != nil {
		return model.Discount{}, err
	}
	if len(created.ProductCodes) > 0 {
		keys := make([]string, 0, len(created.ProductCodes))
		for _, code := range created.ProductCodes {
			keys = append(keys, fmt.Sprintf(keyActiveDiscounts, code))
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.logger.WarnContext(ctx, "Failed to invalidate discount cache", "discount_id", created.ID, "error", err)
		}
	}
	return created, nil
}

func (c *CachedDiscountStore) FindActiveDiscounts(ctx context.Context, productCode string, date time.Time) ([]model.Discount, error) {
	key := fmt.Sprintf(keyActiveDiscounts, productCode)
	field := model.Day(date).Format(time.DateOnly)

	raw, err := c.rdb.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		var cached []model.Discount
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.WarnContext(ctx, "Dropping undecodable discount cache entry", "key", key, "field", field)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "Discount cache read failed", "key", key, "error", err)
	}

	discounts, err := c.DiscountStore.FindActiveDiscounts(ctx, productCode, date)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(discounts)
	if err != nil {
		return discounts, nil
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, field, payload)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "Discount cache write failed", "key", key, "error", err)
	}
	return discounts, nil
}
