package models

import (
	"encoding/json"
	"time"
)

// Typed notification payloads. Each notification type carries exactly one of
// these shapes in its data column, so consumers never do ad hoc field lookups
// on an open object.

// AdminOrderPayload accompanies the admin "order" notification.
type AdminOrderPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	TotalPrice    int64  `json:"total_price"`
	PaymentMethod string `json:"payment_method"`
}

// OrderCreatedPayload accompanies the order_created user notification.
type OrderCreatedPayload struct {
	OrderID       string `json:"order_id"`
	TotalPrice    int64  `json:"total_price"`
	PaymentMethod string `json:"payment_method"`
}

// PaymentConfirmedPayload accompanies the payment_confirmed user notification.
type PaymentConfirmedPayload struct {
	OrderID    string    `json:"order_id"`
	ExternalID string    `json:"external_id,omitempty"`
	Amount     int64     `json:"amount"`
	CapturedAt time.Time `json:"captured_at"`
}

// PaymentReminderPayload accompanies the payment_reminder user notification.
// Deadline is the instant after which the order will be auto-cancelled.
type PaymentReminderPayload struct {
	OrderID  string    `json:"order_id"`
	Deadline time.Time `json:"deadline"`
}

// OrderShippedPayload accompanies the order_shipped user notification.
type OrderShippedPayload struct {
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// OrderDeliveredPayload accompanies the order_delivered user notification.
type OrderDeliveredPayload struct {
	OrderID string `json:"order_id"`
}

// OrderCancelledPayload accompanies the order_cancelled user notification.
type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// RateProductPayload accompanies the rate_product user notification, one per
// distinct product of a delivered order.
type RateProductPayload struct {
	OrderID     string `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
}

// MarshalPayload serializes a typed payload for storage. Payload shapes are
// plain structs, so marshalling cannot fail in practice; a nil raw message is
// returned on the impossible path rather than propagating an error through
// every notification call site.
func MarshalPayload(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
