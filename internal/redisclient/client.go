package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/commit_stock.lua
var commitStockScript string

// Client wraps the redis connection used as a read-side stock cache and for
// checkout idempotency keys. The cache is never authoritative: the database
// transaction in the store decides every commit, and the cache mirrors it
// best-effort.
type Client struct {
	rdb          *redis.Client
	commitScript *redis.Script
}

// NewClient creates a new Redis client with the stock script loaded.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		commitScript: redis.NewScript(commitStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// InitStock seeds the cached stock and sold counters for a product.
func (c *Client) InitStock(ctx context.Context, productID int64, stock, sold int) error {
	key := fmt.Sprintf("stock:%d", productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "stock", stock)
	pipe.HSet(ctx, key, "sold", sold)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock returns the cached stock count for a product. A missing key is an
// error so callers fall back to the database.
func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	key := fmt.Sprintf("stock:%d", productID)

	val, err := c.rdb.HGet(ctx, key, "stock").Result()
	if err != nil {
		return 0, fmt.Errorf("stock not cached for product %d: %w", productID, err)
	}

	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt cached stock for product %d: %w", productID, err)
	}
	return stock, nil
}

// CommitStock mirrors a confirmed inventory commit onto the cache. Returns
// false when the cached count was too low or the key was missing; the caller
// only logs either case, since the database already holds the truth.
func (c *Client) CommitStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	key := fmt.Sprintf("stock:%d", productID)

	result, err := c.commitScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("commit stock script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return code == 1, nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
