package models

import "time"

// Event types published to the order-events topic. The feed is informational
// fan-out: consumers drive the best-effort external channel off it, so losing
// an event never affects order correctness.
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypePaymentConfirmed   = "PAYMENT_CONFIRMED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published when checkout submission creates an order.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email,omitempty"`
	TotalPrice    int64           `json:"total_price"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// PaymentConfirmedEvent is published when an order flips from unpaid to paid.
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	UserEmail  string `json:"user_email,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Amount     int64  `json:"amount"`
}

// OrderStatusChangedEvent is published on operator status transitions.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	UserEmail      string      `json:"user_email,omitempty"`
	From           OrderStatus `json:"from"`
	To             OrderStatus `json:"to"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
}

// OrderCancelledEvent is published for both operator cancels and scheduler
// sweeps.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`
	Reason    string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
