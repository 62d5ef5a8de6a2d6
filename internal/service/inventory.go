package service

import (
	"context"

	"storefront-core/internal/models"
	"storefront-core/internal/util"

	"go.uber.org/zap"
)

// InventoryAdjuster maintains the stock view around confirmed payments. The
// authoritative decrement happens in the store, inside the same transaction
// as the paid flip; this component mirrors committed decrements onto the
// redis cache and serves fast availability reads at checkout time.
type InventoryAdjuster struct {
	products ProductStore
	cache    StockCache
	logger   *zap.Logger
}

// NewInventoryAdjuster creates a new inventory adjuster. cache may be nil,
// in which case availability reads always hit the caller-supplied snapshot.
func NewInventoryAdjuster(products ProductStore, cache StockCache) *InventoryAdjuster {
	return &InventoryAdjuster{
		products: products,
		cache:    cache,
		logger:   util.Named("inventory"),
	}
}

// MirrorCommit applies an already-committed stock decrement onto the redis
// counters. Best-effort: failures are logged, never surfaced, since the
// database already holds the truth.
func (ia *InventoryAdjuster) MirrorCommit(ctx context.Context, items []models.OrderItem) {
	if ia.cache == nil {
		return
	}
	for _, item := range items {
		ok, err := ia.cache.CommitStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			ia.logger.Warn("Failed to mirror stock commit to cache",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		if !ok {
			ia.logger.Warn("Cache stock out of sync with database",
				zap.Int64("product_id", item.ProductID))
		}
	}
}

// AvailableStock returns the freshest known stock count for a product: the
// cached counter when present, the catalog snapshot otherwise.
func (ia *InventoryAdjuster) AvailableStock(ctx context.Context, product *models.Product) int {
	if ia.cache != nil {
		if stock, err := ia.cache.GetStock(ctx, product.ID); err == nil {
			return stock
		}
	}
	return product.CountInStock
}

// SyncToCache seeds the redis counters from the catalog. Called once at
// startup; per-product failures are logged and skipped.
func (ia *InventoryAdjuster) SyncToCache(ctx context.Context) error {
	if ia.cache == nil {
		return nil
	}

	products, err := ia.products.GetProducts(ctx)
	if err != nil {
		return err
	}

	for _, product := range products {
		if err := ia.cache.InitStock(ctx, product.ID, product.CountInStock, product.SoldCount); err != nil {
			ia.logger.Warn("Failed to seed stock cache",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	ia.logger.Info("Stock cache synced", zap.Int("count", len(products)))
	return nil
}
