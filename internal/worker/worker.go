package worker

import (
	"context"
	"fmt"
	"time"

	"storefront-core/internal/broker"
	"storefront-core/internal/models"
	"storefront-core/internal/service"
	"storefront-core/internal/util"

	"go.uber.org/zap"
)

// eventDedupTTL bounds how long a handled event id is remembered. Kafka
// redeliveries happen within seconds of the original; a day is plenty.
const eventDedupTTL = 24 * time.Hour

// EventDeduper remembers event ids the worker has already handled so an
// at-least-once redelivery does not send the same email twice. Satisfied by
// *redisclient.Client.
type EventDeduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// NotificationWorker consumes order lifecycle events and drives the
// best-effort external channel from them. The feed rows are written
// synchronously by the dispatcher; only the side channel rides the broker,
// so a lost event costs at most one email.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     *service.Dispatcher
	deduper      EventDeduper
	logger       *zap.Logger
}

// NewNotificationWorker creates a worker bound to a consumer and dispatcher.
// deduper may be nil, in which case redeliveries are not filtered.
func NewNotificationWorker(consumer *broker.Consumer, notifier *service.Dispatcher, deduper EventDeduper) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
		deduper:  deduper,
		logger:   util.Named("notification-worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnPaymentConfirmed(w.handlePaymentConfirmed)
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// alreadyHandled reports whether the event id was seen before. Dedup is
// best-effort: a cache error counts as unseen, because re-sending one email
// beats dropping it.
func (w *NotificationWorker) alreadyHandled(ctx context.Context, eventID string) bool {
	if w.deduper == nil || eventID == "" {
		return false
	}
	seen, err := w.deduper.CheckIdempotencyKey(ctx, "event:"+eventID)
	if err != nil {
		w.logger.Warn("Event dedup check failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	if seen {
		w.logger.Debug("Skipping redelivered event", zap.String("event_id", eventID))
	}
	return seen
}

func (w *NotificationWorker) markHandled(ctx context.Context, eventID string) {
	if w.deduper == nil || eventID == "" {
		return
	}
	if err := w.deduper.SetIdempotencyKey(ctx, "event:"+eventID, 1, eventDedupTTL); err != nil {
		w.logger.Warn("Event dedup mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	if w.alreadyHandled(ctx, event.EventID) {
		return nil
	}
	body := fmt.Sprintf(
		"We received your order %s for a total of %s. We'll let you know as soon as it ships.",
		event.OrderID, formatMoney(event.TotalPrice))
	if event.PaymentMethod == models.PaymentMethodCash {
		body += " Payment is collected on delivery."
	}
	w.notifier.NotifyExternalChannel(event.UserEmail, "Order received", body)
	w.markHandled(ctx, event.EventID)
	return nil
}

func (w *NotificationWorker) handlePaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	if w.alreadyHandled(ctx, event.EventID) {
		return nil
	}
	body := fmt.Sprintf(
		"Your payment of %s for order %s was confirmed. Thank you for shopping with us!",
		formatMoney(event.Amount), event.OrderID)
	w.notifier.NotifyExternalChannel(event.UserEmail, "Payment confirmed", body)
	w.markHandled(ctx, event.EventID)
	return nil
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if w.alreadyHandled(ctx, event.EventID) {
		return nil
	}
	var subject, body string

	switch event.To {
	case models.StatusInTransit:
		subject = "Your order is on its way"
		body = fmt.Sprintf("Order %s has shipped.", event.OrderID)
		if event.TrackingNumber != "" {
			body += fmt.Sprintf(" Tracking number: %s.", event.TrackingNumber)
		}
	case models.StatusDelivered:
		subject = "Your order was delivered"
		body = fmt.Sprintf("Order %s was delivered. We'd love to hear what you think of your purchase!", event.OrderID)
	default:
		return nil
	}

	w.notifier.NotifyExternalChannel(event.UserEmail, subject, body)
	w.markHandled(ctx, event.EventID)
	return nil
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	if w.alreadyHandled(ctx, event.EventID) {
		return nil
	}
	body := fmt.Sprintf("Order %s was cancelled.", event.OrderID)
	if event.Reason == "payment_deadline_expired" {
		body = fmt.Sprintf("Order %s was cancelled because payment was not received in time.", event.OrderID)
	}
	w.notifier.NotifyExternalChannel(event.UserEmail, "Order cancelled", body)
	w.markHandled(ctx, event.EventID)
	return nil
}

func formatMoney(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
