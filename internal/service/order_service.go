package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-core/internal/models"
	"storefront-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService orchestrates the order lifecycle: checkout submission, payment
// confirmation, inventory adjustment, operator status transitions and the
// notification fan-out for each step.
type OrderService struct {
	orders    OrderStore
	products  ProductStore
	inventory *InventoryAdjuster
	notifier  *Dispatcher
	events    EventPublisher
	clock     Clock
	logger    *zap.Logger
}

// NewOrderService creates a new order service. events may be nil when no
// broker is wired (tests); clock defaults to the wall clock when nil.
func NewOrderService(
	orders OrderStore,
	products ProductStore,
	inventory *InventoryAdjuster,
	notifier *Dispatcher,
	events EventPublisher,
	clock Clock,
) *OrderService {
	if clock == nil {
		clock = SystemClock()
	}
	return &OrderService{
		orders:    orders,
		products:  products,
		inventory: inventory,
		notifier:  notifier,
		events:    events,
		clock:     clock,
		logger:    util.Named("orders"),
	}
}

// CheckoutItem references a catalog product and a quantity. Price, name and
// image are resolved server-side from the live catalog and frozen into the
// order snapshot.
type CheckoutItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrderRequest represents a checkout submission.
type CreateOrderRequest struct {
	UserID          string                 `json:"user_id" binding:"required"`
	UserEmail       string                 `json:"user_email"`
	Items           []CheckoutItem         `json:"items" binding:"required,min=1"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" binding:"required"`
	ShippingPrice   int64                  `json:"shipping_price"`
	TaxPrice        int64                  `json:"tax_price"`
	// TotalPrice is the client-computed total, cross-checked against the
	// server-side computation. Zero means the client did not submit one.
	TotalPrice     int64                  `json:"total_price"`
	Paid           bool                   `json:"paid"`
	Receipt        *models.PaymentReceipt `json:"receipt,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// CreateOrder validates a checkout submission, freezes the catalog snapshot
// into a new Pending order and runs the creation fan-out. For immediate-pay
// submissions (captured card/wallet payment) it also applies the payment
// confirmation path before returning.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !models.ValidPaymentMethod(req.PaymentMethod) {
		util.OrdersFailedTotal.WithLabelValues("invalid_method").Inc()
		return nil, fmt.Errorf("%w: unknown payment method %q", models.ErrValidation, req.PaymentMethod)
	}
	if req.Paid && req.Receipt == nil {
		return nil, fmt.Errorf("%w: paid order submitted without a receipt", models.ErrValidation)
	}
	if req.Paid && req.PaymentMethod == models.PaymentMethodCash {
		return nil, fmt.Errorf("%w: cash orders are collected on delivery", models.ErrValidation)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order submission detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	var itemsPrice int64
	for _, line := range req.Items {
		product := products[line.ProductID]

		if available := s.inventory.AvailableStock(ctx, product); available < line.Quantity {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w: product %d has %d in stock, requested %d",
				models.ErrInsufficientStock, product.ID, available, line.Quantity)
		}

		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			ImageURL:  product.ImageURL,
		})
		itemsPrice += product.Price * int64(line.Quantity)
	}

	totalPrice := itemsPrice + req.ShippingPrice + req.TaxPrice
	if req.TotalPrice != 0 && req.TotalPrice != totalPrice {
		util.OrdersFailedTotal.WithLabelValues("total_mismatch").Inc()
		return nil, fmt.Errorf("%w: submitted total %d does not match computed total %d",
			models.ErrValidation, req.TotalPrice, totalPrice)
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		UserEmail:       req.UserEmail,
		Status:          models.StatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		ItemsPrice:      itemsPrice,
		ShippingPrice:   req.ShippingPrice,
		TaxPrice:        req.TaxPrice,
		TotalPrice:      totalPrice,
		IdempotencyKey:  req.IdempotencyKey,
		Items:           items,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.WithLabelValues(order.PaymentMethod).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total_price", order.TotalPrice))

	if err := s.notifier.NotifyAdmin(ctx, models.AdminNotifOrder, models.AdminOrderPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
	}); err != nil {
		s.logger.Error("Failed to notify admin of new order", zap.Error(err))
	}

	if err := s.notifier.NotifyUser(ctx, order.UserID, models.UserNotifOrderCreated, models.OrderCreatedPayload{
		OrderID:       order.ID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
	}); err != nil {
		s.logger.Error("Failed to notify user of new order", zap.Error(err))
	}

	s.publishOrderCreated(ctx, order)

	if req.Paid {
		if _, err := s.confirmPayment(ctx, order, *req.Receipt); err != nil {
			return order, err
		}
	}

	return order, nil
}

// resolveProducts loads the referenced catalog rows and fails validation if
// any are missing.
func (s *OrderService) resolveProducts(ctx context.Context, items []CheckoutItem) (map[int64]*models.Product, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]*models.Product, len(products))
	for i := range products {
		index[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if _, ok := index[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %d not found", models.ErrValidation, item.ProductID)
		}
	}
	return index, nil
}

// ConfirmPayment marks an order paid and applies the inventory commit and
// notification fan-out. It is safe to call more than once per order: the flip
// and the stock decrement run in one conditional transaction, a detected
// duplicate skips everything downstream, and an insufficient-stock rollback
// leaves the order unpaid so a later confirmation can retry.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string, receipt models.PaymentReceipt) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPayment")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirmPayment(ctx, order, receipt)
}

func (s *OrderService) confirmPayment(ctx context.Context, order *models.Order, receipt models.PaymentReceipt) (*models.Order, error) {
	paidAt := s.clock.Now()

	applied, err := s.orders.MarkPaidAndCommitStock(ctx, order.ID, receipt, paidAt, order.Items)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockCommitsFailed.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.StockCommitsFailed.WithLabelValues("error").Inc()
		}
		s.logger.Error("Payment confirmation rolled back",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}
	if !applied {
		// Already paid: duplicate capture confirmation. No inventory
		// decrement, no second notification.
		util.DuplicateCapturesTotal.Inc()
		s.logger.Info("Duplicate payment confirmation skipped",
			zap.String("order_id", order.ID))
		return order, nil
	}

	order.IsPaid = true
	order.PaidAt = &paidAt
	order.PaymentExternalID = &receipt.ExternalID
	order.PaymentStatus = &receipt.Status
	order.PaymentCapturedAt = &receipt.CapturedAt
	if receipt.PayerEmail != "" {
		order.PayerEmail = &receipt.PayerEmail
	}

	s.inventory.MirrorCommit(ctx, order.Items)

	util.OrdersPaidTotal.Inc()
	s.logger.Info("Payment confirmed",
		zap.String("order_id", order.ID),
		zap.String("external_id", receipt.ExternalID))

	if err := s.notifier.NotifyUser(ctx, order.UserID, models.UserNotifPaymentConfirmed, models.PaymentConfirmedPayload{
		OrderID:    order.ID,
		ExternalID: receipt.ExternalID,
		Amount:     order.TotalPrice,
		CapturedAt: receipt.CapturedAt,
	}); err != nil {
		s.logger.Error("Failed to notify user of payment", zap.Error(err))
	}

	s.publishPaymentConfirmed(ctx, order, receipt)
	return order, nil
}

// UpdateStatus moves an order along the status state machine on operator
// action. Illegal edges are rejected with ErrInvalidTransition. Entering
// Delivered emits a rate_product notification per distinct product, and a
// cash order delivered unpaid is collected on the spot.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, trackingNumber string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, next)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !from.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, next)
	}

	applied, err := s.orders.UpdateOrderStatus(ctx, orderID, from, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The order moved concurrently; the edge we validated no longer
		// exists.
		return nil, fmt.Errorf("%w: order %s changed concurrently", models.ErrInvalidTransition, orderID)
	}
	order.Status = next

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(next)))

	switch next {
	case models.StatusInTransit:
		if trackingNumber != "" {
			if err := s.orders.SetTrackingNumber(ctx, orderID, trackingNumber); err != nil {
				s.logger.Error("Failed to set tracking number", zap.Error(err))
			} else {
				order.TrackingNumber = &trackingNumber
			}
		}
		s.notifyUserLogged(ctx, order.UserID, models.UserNotifOrderShipped, models.OrderShippedPayload{
			OrderID:        orderID,
			TrackingNumber: trackingNumber,
		})

	case models.StatusDelivered:
		util.OrdersDeliveredTotal.Inc()

		// Cash is collected on delivery; confirming here keeps the
		// (Delivered, unpaid) combination unreachable.
		if !order.IsPaid && order.PaymentMethod == models.PaymentMethodCash {
			receipt := models.PaymentReceipt{
				Status:     "cash_on_delivery",
				CapturedAt: s.clock.Now(),
			}
			if _, err := s.confirmPayment(ctx, order, receipt); err != nil {
				s.logger.Error("Failed to confirm cash payment on delivery",
					zap.String("order_id", orderID),
					zap.Error(err))
			}
		}

		s.notifyUserLogged(ctx, order.UserID, models.UserNotifOrderDelivered, models.OrderDeliveredPayload{
			OrderID: orderID,
		})

		seen := make(map[int64]bool, len(order.Items))
		for _, item := range order.Items {
			if seen[item.ProductID] {
				continue
			}
			seen[item.ProductID] = true
			s.notifyUserLogged(ctx, order.UserID, models.UserNotifRateProduct, models.RateProductPayload{
				OrderID:     orderID,
				ProductID:   item.ProductID,
				ProductName: item.Name,
			})
		}

	case models.StatusCancelled:
		util.OrdersCancelledTotal.WithLabelValues("operator").Inc()
		s.notifyUserLogged(ctx, order.UserID, models.UserNotifOrderCancelled, models.OrderCancelledPayload{
			OrderID: orderID,
			Reason:  "cancelled_by_operator",
		})
		s.publishOrderCancelled(ctx, order, "cancelled_by_operator")
		return order, nil
	}

	s.publishStatusChanged(ctx, order, from, next, trackingNumber)
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.orders.GetOrderByID(ctx, orderID)
}

// ListOrdersForUser returns a user's orders, newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

// ListAllOrders returns every order for the operator view.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.orders.ListOrders(ctx)
}

func (s *OrderService) notifyUserLogged(ctx context.Context, userID string, typ models.UserNotificationType, payload interface{}) {
	if err := s.notifier.NotifyUser(ctx, userID, typ, payload); err != nil {
		s.logger.Error("Failed to dispatch user notification",
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:     s.baseEvent(models.EventTypeOrderCreated),
		OrderID:       order.ID,
		UserID:        order.UserID,
		UserEmail:     order.UserEmail,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		Items:         items,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) publishPaymentConfirmed(ctx context.Context, order *models.Order, receipt models.PaymentReceipt) {
	if s.events == nil {
		return
	}
	event := &models.PaymentConfirmedEvent{
		BaseEvent:  s.baseEvent(models.EventTypePaymentConfirmed),
		OrderID:    order.ID,
		UserID:     order.UserID,
		UserEmail:  order.UserEmail,
		ExternalID: receipt.ExternalID,
		Amount:     order.TotalPrice,
	}
	if err := s.events.PublishPaymentConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, from, to models.OrderStatus, trackingNumber string) {
	if s.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent:      s.baseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		UserID:         order.UserID,
		UserEmail:      order.UserEmail,
		From:           from,
		To:             to,
		TrackingNumber: trackingNumber,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func (s *OrderService) publishOrderCancelled(ctx context.Context, order *models.Order, reason string) {
	if s.events == nil {
		return
	}
	event := &models.OrderCancelledEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    order.UserID,
		UserEmail: order.UserEmail,
		Reason:    reason,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

func (s *OrderService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.clock.Now(),
	}
}
