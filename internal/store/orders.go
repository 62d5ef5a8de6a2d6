package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// StaleOrder is the projection returned by the auto-cancellation queries:
// just enough to address the follow-up notifications.
type StaleOrder struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	UserEmail string    `db:"user_email"`
	CreatedAt time.Time `db:"created_at"`
}

// CreateOrder inserts an order and its item snapshot in one transaction. The
// order's ID must already be assigned; CreatedAt/UpdatedAt are filled in from
// the database.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			id, user_id, user_email, status, payment_method, shipping_address,
			items_price, shipping_price, tax_price, total_price,
			is_paid, paid_at, payment_external_id, payment_status,
			payment_captured_at, payer_email, idempotency_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.UserEmail, order.Status, order.PaymentMethod,
		order.ShippingAddress, order.ItemsPrice, order.ShippingPrice,
		order.TaxPrice, order.TotalPrice, order.IsPaid, order.PaidAt,
		order.PaymentExternalID, order.PaymentStatus, order.PaymentCapturedAt,
		order.PayerEmail, order.IdempotencyKey)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.QueryRowxContext(ctx, itemQuery,
			item.OrderID, item.ProductID, item.Name, item.Quantity,
			item.UnitPrice, item.ImageURL).Scan(&item.ID); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// GetOrderByID retrieves an order with its item snapshot.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", id); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by its idempotency key, or nil
// if no such order exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return &order, nil
}

// ListOrders retrieves all orders with their items, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrdersByUser retrieves a user's orders with their items, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the item snapshots for a batch of orders in one query.
func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	for _, item := range items {
		if o, ok := index[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

// MarkPaidAndCommitStock flips an order from unpaid to paid, attaches the
// gateway receipt and applies the inventory decrement for every order line,
// all in one transaction. The flip is gated on the current unpaid state and
// each decrement on count_in_stock >= qty, so the three outcomes are:
// (true, nil) flip and decrements committed together; (false, nil) the order
// was already paid, nothing touched, the caller must treat the call as a
// detected duplicate; (false, ErrInsufficientStock) the whole transaction
// rolled back and the order is still unpaid, so a later capture confirmation
// can retry once stock returns.
func (s *Store) MarkPaidAndCommitStock(ctx context.Context, orderID string, receipt models.PaymentReceipt, paidAt time.Time, items []models.OrderItem) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET is_paid = TRUE, paid_at = $1,
		     payment_external_id = $2, payment_status = $3,
		     payment_captured_at = $4, payer_email = NULLIF($5, ''),
		     updated_at = NOW()
		 WHERE id = $6 AND is_paid = FALSE`,
		paidAt, receipt.ExternalID, receipt.Status, receipt.CapturedAt,
		receipt.PayerEmail, orderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, item := range items {
		res, err := tx.ExecContext(ctx,
			`UPDATE products
			 SET count_in_stock = count_in_stock - $1, sold_count = sold_count + $1
			 WHERE id = $2 AND count_in_stock >= $1`,
			item.Quantity, item.ProductID)
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
		if affected == 0 {
			return false, fmt.Errorf("%w: product %d qty %d", models.ErrInsufficientStock, item.ProductID, item.Quantity)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return true, nil
}

// UpdateOrderStatus moves an order along one edge of the transition table,
// gated on the expected current status so concurrent operators cannot race
// the same order through an illegal path. It reports whether the update was
// applied.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return affected > 0, nil
}

// SetTrackingNumber records the carrier tracking number for a shipped order.
func (s *Store) SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET tracking_number = $1, updated_at = NOW() WHERE id = $2",
		trackingNumber, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// CancelStale bulk-cancels every unpaid Pending/Processing order created
// before the cutoff and returns the affected rows. The filter predicate makes
// repeated sweeps a no-op on already-cancelled orders, so concurrent
// schedulers are safe without a lock.
func (s *Store) CancelStale(ctx context.Context, cutoff time.Time) ([]StaleOrder, error) {
	var cancelled []StaleOrder
	err := s.db.SelectContext(ctx, &cancelled,
		`UPDATE orders
		 SET status = $1, updated_at = NOW()
		 WHERE is_paid = FALSE
		   AND status IN ($2, $3)
		   AND created_at < $4
		 RETURNING id, user_id, user_email, created_at`,
		models.StatusCancelled, models.StatusPending, models.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return cancelled, nil
}

// ListUnpaidCreatedBefore returns unpaid Pending/Processing orders created
// before the cutoff, used by the payment reminder pass.
func (s *Store) ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]StaleOrder, error) {
	var stale []StaleOrder
	err := s.db.SelectContext(ctx, &stale,
		`SELECT id, user_id, user_email, created_at FROM orders
		 WHERE is_paid = FALSE
		   AND status IN ($1, $2)
		   AND created_at < $3
		 ORDER BY created_at`,
		models.StatusPending, models.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return stale, nil
}
