// Package checkout implements the client-facing multi-step checkout flow:
// Address -> Payment -> Review -> submit. The flow is held entirely by the
// caller until submission; cancelling discards it and no order state exists
// for an abandoned checkout.
package checkout

import (
	"context"
	"fmt"

	"storefront-core/internal/models"
	"storefront-core/internal/service"
)

// Step is a stage of the checkout flow.
type Step string

const (
	StepAddress Step = "address"
	StepPayment Step = "payment"
	StepReview  Step = "review"
)

// Item is one cart line as the client sees it: the unit price is the one
// displayed at cart time and is cross-checked server-side on submit.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Submitter creates the order once the flow completes. *service.OrderService
// satisfies it.
type Submitter interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.Order, error)
}

// Flow is the checkout state machine. The zero value is not usable; construct
// with New.
type Flow struct {
	step          Step
	items         []Item
	address       models.ShippingAddress
	paymentMethod string
	shippingPrice int64
	taxPrice      int64
}

// New starts a checkout flow for a cart. Shipping and tax are quoted up front
// and frozen for the flow's lifetime.
func New(items []Item, shippingPrice, taxPrice int64) (*Flow, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", models.ErrValidation)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity must be positive", models.ErrValidation, item.ProductID)
		}
	}
	return &Flow{
		step:          StepAddress,
		items:         items,
		shippingPrice: shippingPrice,
		taxPrice:      taxPrice,
	}, nil
}

// Step returns the flow's current stage.
func (f *Flow) Step() Step { return f.step }

// TotalPrice is the client-side total: cart lines plus the quoted shipping
// and tax.
func (f *Flow) TotalPrice() int64 {
	var items int64
	for _, item := range f.items {
		items += item.UnitPrice * int64(item.Quantity)
	}
	return items + f.shippingPrice + f.taxPrice
}

// SetAddress records the shipping address and advances to the payment step.
func (f *Flow) SetAddress(address models.ShippingAddress) error {
	if f.step != StepAddress {
		return fmt.Errorf("%w: address can only be set at the address step", models.ErrValidation)
	}
	f.address = address
	f.step = StepPayment
	return nil
}

// SelectPaymentMethod records the payment method and advances to review.
func (f *Flow) SelectPaymentMethod(method string) error {
	if f.step != StepPayment {
		return fmt.Errorf("%w: payment method can only be chosen at the payment step", models.ErrValidation)
	}
	if !models.ValidPaymentMethod(method) {
		return fmt.Errorf("%w: unknown payment method %q", models.ErrValidation, method)
	}
	f.paymentMethod = method
	f.step = StepReview
	return nil
}

// Back steps the flow one stage backwards.
func (f *Flow) Back() error {
	switch f.step {
	case StepPayment:
		f.step = StepAddress
	case StepReview:
		f.step = StepPayment
	default:
		return fmt.Errorf("%w: already at the first step", models.ErrValidation)
	}
	return nil
}

// Cancel discards all flow state. Nothing was persisted, so there is nothing
// else to undo.
func (f *Flow) Cancel() {
	*f = Flow{}
}

// Submit finishes the flow. Cash orders are created unpaid and collected on
// delivery. Card/wallet orders run the two-phase gateway protocol first and
// are created already paid, with the capture receipt attached.
func (f *Flow) Submit(ctx context.Context, svc Submitter, gateway service.PaymentGateway, userID, userEmail, currency string) (*models.Order, error) {
	if f.step != StepReview {
		return nil, fmt.Errorf("%w: checkout not reviewed", models.ErrValidation)
	}

	req := &service.CreateOrderRequest{
		UserID:          userID,
		UserEmail:       userEmail,
		ShippingAddress: f.address,
		PaymentMethod:   f.paymentMethod,
		ShippingPrice:   f.shippingPrice,
		TaxPrice:        f.taxPrice,
		TotalPrice:      f.TotalPrice(),
	}
	for _, item := range f.items {
		req.Items = append(req.Items, service.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	if f.paymentMethod == models.PaymentMethodPayPal {
		gatewayOrderID, err := gateway.CreateGatewayOrder(ctx, f.TotalPrice(), currency)
		if err != nil {
			return nil, err
		}

		receipt, err := gateway.CaptureGatewayOrder(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}

		req.Paid = true
		req.Receipt = receipt
	}

	return svc.CreateOrder(ctx, req)
}
