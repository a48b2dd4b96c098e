package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedCatalog is a read-through price cache. Prices are read-mostly and a
// stale price only affects new orders for at most TTL; reconciliation never
// reads from here, it always re-reads the order row.
type CachedCatalog struct {
	next  Catalog
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedCatalog(next Catalog, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{next: next, redis: rdb, ttl: ttl, log: log}
}

func cacheKey(productID string) string { return "catalog:price:" + productID }

func (c *CachedCatalog) GetPrice(ctx context.Context, productID string) (*Product, error) {
	if raw, err := c.redis.Get(ctx, cacheKey(productID)).Bytes(); err == nil {
		var p Product
		if json.Unmarshal(raw, &p) == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// cache down: fall through to the catalog, do not fail the order
		c.log.Warn("price cache read failed", zap.String("product_id", productID), zap.Error(err))
	}

	p, err := c.next.GetPrice(ctx, productID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.redis.Set(ctx, cacheKey(productID), raw, c.ttl).Err(); err != nil {
			c.log.Warn("price cache write failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return p, nil
}
