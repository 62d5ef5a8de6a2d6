package service

import (
	"context"
	"time"

	"storefront-core/internal/models"
	"storefront-core/internal/store"
)

// OrderStore is the order persistence surface the services depend on,
// satisfied by *store.Store and by in-memory fakes in tests.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	MarkPaidAndCommitStock(ctx context.Context, orderID string, receipt models.PaymentReceipt, paidAt time.Time, items []models.OrderItem) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error)
	SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error
	CancelStale(ctx context.Context, cutoff time.Time) ([]store.StaleOrder, error)
	ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]store.StaleOrder, error)
}

// ProductStore is the catalog surface: product lookups for order snapshots
// and availability checks. Stock mutation happens only inside
// OrderStore.MarkPaidAndCommitStock, in the same transaction as the paid
// flip.
type ProductStore interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// NotificationStore is the feed persistence surface used by the dispatcher.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertUserNotification(ctx context.Context, n *models.UserNotification) error
	HasUserNotificationForOrder(ctx context.Context, userID string, typ models.UserNotificationType, orderID string) (bool, error)
}

// StockCache is the redis-backed stock mirror. It is advisory only: the
// database transaction decides every commit.
type StockCache interface {
	InitStock(ctx context.Context, productID int64, stock, sold int) error
	GetStock(ctx context.Context, productID int64) (int, error)
	CommitStock(ctx context.Context, productID int64, quantity int) (bool, error)
}

// EventPublisher publishes order lifecycle events, satisfied by
// broker.EventPublisher.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// PaymentGateway is the two-phase payment protocol: create an opaque gateway
// order, then capture it. Cash payment never touches a gateway.
type PaymentGateway interface {
	CreateGatewayOrder(ctx context.Context, amount int64, currency string) (string, error)
	CaptureGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentReceipt, error)
}

// ExternalSender delivers a message on the best-effort side channel.
type ExternalSender interface {
	Send(to, subject, body string) error
}

// Clock abstracts time so the auto-cancellation scheduler can be tested by
// advancing a virtual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

var _ OrderStore = (*store.Store)(nil)
var _ ProductStore = (*store.Store)(nil)
var _ NotificationStore = (*store.Store)(nil)
