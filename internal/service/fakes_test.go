package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-core/internal/models"
	"storefront-core/internal/store"
)

// fakeClock is a settable clock for exercising deadline logic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeOrderStore holds orders in memory with the same conditional-update
// semantics as the SQL store. catalog, when set, backs the combined
// paid-flip-plus-stock-commit the way the orders and products tables share
// one transaction.
type fakeOrderStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	catalog *fakeProductStore
	err     error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) MarkPaidAndCommitStock(ctx context.Context, orderID string, receipt models.PaymentReceipt, paidAt time.Time, items []models.OrderItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	if o.IsPaid {
		return false, nil
	}
	// The decrement and the flip commit or roll back together.
	if f.catalog != nil {
		if err := f.catalog.commitStock(items); err != nil {
			return false, err
		}
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentExternalID = &receipt.ExternalID
	o.PaymentStatus = &receipt.Status
	o.PaymentCapturedAt = &receipt.CapturedAt
	if receipt.PayerEmail != "" {
		o.PayerEmail = &receipt.PayerEmail
	}
	return true, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeOrderStore) SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	o.TrackingNumber = &trackingNumber
	return nil
}

func (f *fakeOrderStore) CancelStale(ctx context.Context, cutoff time.Time) ([]store.StaleOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.StaleOrder
	for _, o := range f.orders {
		if o.IsPaid {
			continue
		}
		if o.Status != models.StatusPending && o.Status != models.StatusProcessing {
			continue
		}
		if !o.CreatedAt.Before(cutoff) {
			continue
		}
		o.Status = models.StatusCancelled
		out = append(out, store.StaleOrder{
			ID:        o.ID,
			UserID:    o.UserID,
			UserEmail: o.UserEmail,
			CreatedAt: o.CreatedAt,
		})
	}
	return out, nil
}

func (f *fakeOrderStore) ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]store.StaleOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.StaleOrder
	for _, o := range f.orders {
		if o.IsPaid {
			continue
		}
		if o.Status != models.StatusPending && o.Status != models.StatusProcessing {
			continue
		}
		if !o.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, store.StaleOrder{
			ID:        o.ID,
			UserID:    o.UserID,
			UserEmail: o.UserEmail,
			CreatedAt: o.CreatedAt,
		})
	}
	return out, nil
}

// fakeProductStore is an in-memory catalog with all-or-nothing stock commits.
type fakeProductStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	commits  int
}

func newFakeProductStore(products ...models.Product) *fakeProductStore {
	f := &fakeProductStore{products: make(map[int64]*models.Product)}
	for i := range products {
		p := products[i]
		f.products[p.ID] = &p
	}
	return f
}

func (f *fakeProductStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProductStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// commitStock applies the all-or-nothing decrement the SQL store runs inside
// the paid-flip transaction.
func (f *fakeProductStore) commitStock(items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		p, ok := f.products[item.ProductID]
		if !ok || p.CountInStock < item.Quantity {
			return fmt.Errorf("%w: product %d", models.ErrInsufficientStock, item.ProductID)
		}
	}
	for _, item := range items {
		p := f.products[item.ProductID]
		p.CountInStock -= item.Quantity
		p.SoldCount += item.Quantity
	}
	f.commits++
	return nil
}

func (f *fakeProductStore) setStock(id int64, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id].CountInStock = stock
}

func (f *fakeProductStore) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].CountInStock
}

func (f *fakeProductStore) sold(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].SoldCount
}

func (f *fakeProductStore) setPrice(id int64, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id].Price = price
}

// fakeNotificationStore records dispatched feed entries.
type fakeNotificationStore struct {
	mu    sync.Mutex
	admin []models.Notification
	user  []models.UserNotification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{}
}

func (f *fakeNotificationStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.admin) + 1)
	f.admin = append(f.admin, *n)
	return nil
}

func (f *fakeNotificationStore) InsertUserNotification(ctx context.Context, n *models.UserNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.user) + 1)
	f.user = append(f.user, *n)
	return nil
}

func (f *fakeNotificationStore) HasUserNotificationForOrder(ctx context.Context, userID string, typ models.UserNotificationType, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.user {
		if n.UserID != userID || n.Type != typ {
			continue
		}
		var payload struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(n.Data, &payload); err != nil {
			continue
		}
		if payload.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotificationStore) userByType(typ models.UserNotificationType) []models.UserNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UserNotification
	for _, n := range f.user {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// fakeEvents records published lifecycle events.
type fakeEvents struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	paid      []*models.PaymentConfirmedEvent
	status    []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
}

func (f *fakeEvents) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEvents) PublishPaymentConfirmed(ctx context.Context, e *models.PaymentConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, e)
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, e)
	return nil
}

func (f *fakeEvents) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return nil
}

var _ OrderStore = (*fakeOrderStore)(nil)
var _ ProductStore = (*fakeProductStore)(nil)
var _ NotificationStore = (*fakeNotificationStore)(nil)
var _ EventPublisher = (*fakeEvents)(nil)
var _ Clock = (*fakeClock)(nil)
