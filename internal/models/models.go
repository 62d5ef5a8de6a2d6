package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OrderStatus is the fulfillment state of an order. Payment is tracked
// separately on the order via IsPaid and never influences the status value
// directly.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusInTransit  OrderStatus = "InTransit"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// statusTransitions is the full set of operator-reachable edges. Delivered and
// Cancelled are terminal and have no outgoing edges.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusInTransit, StatusCancelled},
	StatusProcessing: {StatusInTransit, StatusCancelled},
	StatusInTransit:  {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether the edge s -> next is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment methods
const (
	PaymentMethodCash   = "cash"
	PaymentMethodPayPal = "paypal"
)

// ValidPaymentMethod reports whether m is a supported payment method.
func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodCash || m == PaymentMethodPayPal
}

// ShippingAddress is the immutable address snapshot frozen into an order at
// checkout time. Stored as a single jsonb column.
type ShippingAddress struct {
	Street    string `json:"street"`
	ExtNumber string `json:"ext_number"`
	IntNumber string `json:"int_number,omitempty"`
	Colony    string `json:"colony"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// Value implements driver.Valuer.
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *ShippingAddress) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = ShippingAddress{}
		return nil
	default:
		return fmt.Errorf("shipping address: cannot scan %T", src)
	}
}

// PaymentReceipt is the opaque gateway receipt attached to an order once it
// has been paid. For cash orders collected on delivery the external id is
// empty and status is "cash_on_delivery".
type PaymentReceipt struct {
	ExternalID string    `json:"external_id"`
	Status     string    `json:"status"`
	CapturedAt time.Time `json:"captured_at"`
	PayerEmail string    `json:"payer_email,omitempty"`
}

// Order is the durable record of a checkout. Item prices, names and images
// are snapshots taken at creation time and are never re-read from the live
// catalog.
type Order struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	UserEmail       string          `db:"user_email" json:"user_email"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	ShippingAddress ShippingAddress `db:"shipping_address" json:"shipping_address"`

	ItemsPrice    int64 `db:"items_price" json:"items_price"`
	ShippingPrice int64 `db:"shipping_price" json:"shipping_price"`
	TaxPrice      int64 `db:"tax_price" json:"tax_price"`
	TotalPrice    int64 `db:"total_price" json:"total_price"`

	IsPaid bool       `db:"is_paid" json:"is_paid"`
	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	PaymentExternalID *string    `db:"payment_external_id" json:"payment_external_id,omitempty"`
	PaymentStatus     *string    `db:"payment_status" json:"payment_status,omitempty"`
	PaymentCapturedAt *time.Time `db:"payment_captured_at" json:"payment_captured_at,omitempty"`
	PayerEmail        *string    `db:"payer_email" json:"payer_email,omitempty"`

	TrackingNumber *string `db:"tracking_number" json:"tracking_number,omitempty"`
	IdempotencyKey string  `db:"idempotency_key" json:"idempotency_key,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// Receipt reconstructs the gateway receipt from the order's payment columns,
// or nil if the order has not been paid.
func (o *Order) Receipt() *PaymentReceipt {
	if !o.IsPaid || o.PaymentStatus == nil {
		return nil
	}
	r := &PaymentReceipt{Status: *o.PaymentStatus}
	if o.PaymentExternalID != nil {
		r.ExternalID = *o.PaymentExternalID
	}
	if o.PaymentCapturedAt != nil {
		r.CapturedAt = *o.PaymentCapturedAt
	}
	if o.PayerEmail != nil {
		r.PayerEmail = *o.PayerEmail
	}
	return r
}

// OrderItem is a single line of an order's price snapshot.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	ImageURL  string `db:"image_url" json:"image_url"`
}

// Product is the catalog view this core needs: price for the snapshot,
// count_in_stock and sold_count for the inventory adjuster. Everything else
// about products belongs to the catalog subsystem.
type Product struct {
	ID           int64     `db:"id" json:"id"`
	SKU          string    `db:"sku" json:"sku"`
	Name         string    `db:"name" json:"name"`
	Price        int64     `db:"price" json:"price"`
	ImageURL     string    `db:"image_url" json:"image_url"`
	CountInStock int       `db:"count_in_stock" json:"count_in_stock"`
	SoldCount    int       `db:"sold_count" json:"sold_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Notification is an admin-facing feed entry. Created once, mutated only to
// flip the read flag.
type Notification struct {
	ID        int64           `db:"id" json:"id"`
	Type      string          `db:"type" json:"type"`
	Data      json.RawMessage `db:"data" json:"data"`
	Read      bool            `db:"is_read" json:"read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// UserNotificationType tags a user feed entry with a statically known payload
// shape (see notifications.go).
type UserNotificationType string

const (
	UserNotifOrderCreated     UserNotificationType = "order_created"
	UserNotifPaymentConfirmed UserNotificationType = "payment_confirmed"
	UserNotifPaymentReminder  UserNotificationType = "payment_reminder"
	UserNotifOrderShipped     UserNotificationType = "order_shipped"
	UserNotifOrderDelivered   UserNotificationType = "order_delivered"
	UserNotifOrderCancelled   UserNotificationType = "order_cancelled"
	UserNotifRateProduct      UserNotificationType = "rate_product"
)

// UserNotification is a per-user feed entry, polled by the client.
type UserNotification struct {
	ID        int64                `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	Type      UserNotificationType `db:"type" json:"type"`
	Data      json.RawMessage      `db:"data" json:"data"`
	Read      bool                 `db:"is_read" json:"read"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// Admin notification types
const (
	AdminNotifOrder = "order"
)
