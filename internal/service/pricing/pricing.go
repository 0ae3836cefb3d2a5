package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
)

// Catalog keeps sale prices in redis, the catalog sync writes them
// Key format: price:{provider}:{service}:{country}
type Catalog struct {
	rdb *redis.Client
}

func NewCatalog(rdb *redis.Client) *Catalog {
	return &Catalog{rdb: rdb}
}

func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

func key(provider string, service string, country string) string {
	return fmt.Sprintf("price:%s:%s:%s", provider, service, country)
}

// Price for the product. Has to return apperrors.ErrPriceNotFound if product is not sold
func (c *Catalog) Price(ctx context.Context, provider string, service string, country string) (decimal.Decimal, error) {
	value, err := c.rdb.Get(ctx, key(provider, service, country)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return decimal.Zero, apperrors.ErrPriceNotFound
	case err != nil:
		return decimal.Zero, fmt.Errorf("redis error: %w", err)
	}

	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price %q: %w", value, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, apperrors.ErrPriceNotFound
	}
	if !models.ValidAmount(price) {
		return decimal.Zero, fmt.Errorf("malformed price %q: finer than a cent", value)
	}

	return price, nil
}

func (c *Catalog) SetPrice(ctx context.Context, provider string, service string, country string, price decimal.Decimal) error {
	if !models.ValidAmount(price) {
		return apperrors.ErrAmountInvalid
	}

	if err := c.rdb.Set(ctx, key(provider, service, country), price.StringFixed(2), 0).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (c *Catalog) DeletePrice(ctx context.Context, provider string, service string, country string) error {
	if err := c.rdb.Del(ctx, key(provider, service, country)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
