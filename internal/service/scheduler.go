package service

import (
	"context"
	"sync"
	"time"

	"storefront-core/internal/models"
	"storefront-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler is the auto-cancellation sweep: a recurring background task that
// bulk-cancels unpaid orders past the payment deadline and reminds buyers
// approaching it. It carries an explicit start/stop lifecycle and an injected
// clock so tests advance virtual time instead of waiting.
//
// The sweep needs no distributed lock: the bulk update's filter predicate
// excludes already-cancelled orders, so concurrent schedulers are harmless.
type Scheduler struct {
	orders   OrderStore
	notifier *Dispatcher
	events   EventPublisher
	clock    Clock
	logger   *zap.Logger

	interval    time.Duration
	cancelAfter time.Duration
	remindAfter time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. events may be nil; clock defaults to the
// wall clock when nil.
func NewScheduler(
	orders OrderStore,
	notifier *Dispatcher,
	events EventPublisher,
	clock Clock,
	interval, cancelAfter, remindAfter time.Duration,
) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		orders:      orders,
		notifier:    notifier,
		events:      events,
		clock:       clock,
		logger:      util.Named("scheduler"),
		interval:    interval,
		cancelAfter: cancelAfter,
		remindAfter: remindAfter,
		stopCh:      make(chan struct{}),
	}
}

// Start runs one sweep immediately, then one per interval until the context
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop terminates the recurring sweep and waits for an in-flight pass to
// finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce cancels first, then reminds: orders past the deadline drop out of
// the unpaid set before the reminder pass sees them.
func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
	}
	if _, err := s.RemindUnpaid(ctx); err != nil {
		s.logger.Error("Reminder pass failed", zap.Error(err))
	}
}

// Sweep cancels every unpaid Pending/Processing order created before
// now - cancelAfter in one bulk conditional update and returns the count
// modified. Each affected order gets an order_cancelled user notification and
// an OrderCancelled event; both are best-effort.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Scheduler.Sweep")
	defer span.End()

	util.SweepRunsTotal.Inc()

	cutoff := s.clock.Now().Add(-s.cancelAfter)
	cancelled, err := s.orders.CancelStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, o := range cancelled {
		if err := s.notifier.NotifyUser(ctx, o.UserID, models.UserNotifOrderCancelled, models.OrderCancelledPayload{
			OrderID: o.ID,
			Reason:  "payment_deadline_expired",
		}); err != nil {
			s.logger.Error("Failed to notify user of auto-cancellation",
				zap.String("order_id", o.ID),
				zap.Error(err))
		}

		if s.events != nil {
			event := &models.OrderCancelledEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderCancelled,
					Timestamp: s.clock.Now(),
				},
				OrderID:   o.ID,
				UserID:    o.UserID,
				UserEmail: o.UserEmail,
				Reason:    "payment_deadline_expired",
			}
			if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
			}
		}
	}

	if len(cancelled) > 0 {
		util.SweepCancelledOrders.Add(float64(len(cancelled)))
		util.OrdersCancelledTotal.WithLabelValues("scheduler").Add(float64(len(cancelled)))
		s.logger.Info("Stale orders cancelled", zap.Int("count", len(cancelled)))
	}
	return len(cancelled), nil
}

// RemindUnpaid emits a payment_reminder notification for unpaid orders older
// than remindAfter, at most once per order across sweeps.
func (s *Scheduler) RemindUnpaid(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Scheduler.RemindUnpaid")
	defer span.End()

	cutoff := s.clock.Now().Add(-s.remindAfter)
	stale, err := s.orders.ListUnpaidCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reminded := 0
	for _, o := range stale {
		seen, err := s.notifier.SeenForOrder(ctx, o.UserID, models.UserNotifPaymentReminder, o.ID)
		if err != nil {
			s.logger.Error("Failed to check for existing reminder",
				zap.String("order_id", o.ID),
				zap.Error(err))
			continue
		}
		if seen {
			continue
		}

		if err := s.notifier.NotifyUser(ctx, o.UserID, models.UserNotifPaymentReminder, models.PaymentReminderPayload{
			OrderID:  o.ID,
			Deadline: o.CreatedAt.Add(s.cancelAfter),
		}); err != nil {
			s.logger.Error("Failed to send payment reminder",
				zap.String("order_id", o.ID),
				zap.Error(err))
			continue
		}

		util.PaymentRemindersTotal.Inc()
		reminded++
	}
	return reminded, nil
}
