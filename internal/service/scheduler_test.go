package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront-core/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedulerEnv(t *testing.T) (*Scheduler, *fakeOrderStore, *fakeNotificationStore, *fakeEvents, *fakeClock) {
	t.Helper()

	orders := newFakeOrderStore()
	notifs := newFakeNotificationStore()
	events := &fakeEvents{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	dispatcher := NewDispatcher(notifs, nil)
	sched := NewScheduler(orders, dispatcher, events, clock, time.Hour, 48*time.Hour, 24*time.Hour)
	return sched, orders, notifs, events, clock
}

func seedOrder(t *testing.T, orders *fakeOrderStore, createdAt time.Time, paid bool, status models.OrderStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New().String(),
		UserID:        "user-1",
		UserEmail:     "u1@example.com",
		Status:        status,
		PaymentMethod: models.PaymentMethodCash,
		TotalPrice:    1500,
		IsPaid:        paid,
		CreatedAt:     createdAt,
	}
	require.NoError(t, orders.CreateOrder(context.Background(), order))
	return order
}

func TestSweepCancelsOnlyPastDeadline(t *testing.T) {
	sched, orders, notifs, events, clock := schedulerEnv(t)
	ctx := context.Background()

	old := seedOrder(t, orders, clock.Now().Add(-49*time.Hour), false, models.StatusPending)
	fresh := seedOrder(t, orders, clock.Now().Add(-47*time.Hour), false, models.StatusPending)

	count, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := orders.GetOrderByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	got, err = orders.GetOrderByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	cancelled := notifs.userByType(models.UserNotifOrderCancelled)
	require.Len(t, cancelled, 1)
	require.Len(t, events.cancelled, 1)
	assert.Equal(t, old.ID, events.cancelled[0].OrderID)
	assert.Equal(t, "payment_deadline_expired", events.cancelled[0].Reason)
}

func TestSweepSkipsPaidAndShippedOrders(t *testing.T) {
	sched, orders, _, _, clock := schedulerEnv(t)
	ctx := context.Background()

	paid := seedOrder(t, orders, clock.Now().Add(-72*time.Hour), true, models.StatusPending)
	shipped := seedOrder(t, orders, clock.Now().Add(-72*time.Hour), false, models.StatusInTransit)

	count, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := orders.GetOrderByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	got, err = orders.GetOrderByID(ctx, shipped.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInTransit, got.Status)
}

func TestSweepIsIdempotentAcrossRuns(t *testing.T) {
	sched, orders, notifs, _, clock := schedulerEnv(t)
	ctx := context.Background()

	seedOrder(t, orders, clock.Now().Add(-50*time.Hour), false, models.StatusPending)

	count, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The second pass sees the order already cancelled and touches nothing.
	count, err = sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, notifs.userByType(models.UserNotifOrderCancelled), 1)
}

func TestRemindUnpaidOncePerOrder(t *testing.T) {
	sched, orders, notifs, _, clock := schedulerEnv(t)
	ctx := context.Background()

	order := seedOrder(t, orders, clock.Now().Add(-25*time.Hour), false, models.StatusPending)
	seedOrder(t, orders, clock.Now().Add(-1*time.Hour), false, models.StatusPending)

	count, err := sched.RemindUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reminders := notifs.userByType(models.UserNotifPaymentReminder)
	require.Len(t, reminders, 1)

	var payload models.PaymentReminderPayload
	require.NoError(t, json.Unmarshal(reminders[0].Data, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, order.CreatedAt.Add(48*time.Hour), payload.Deadline)

	// Later passes must not repeat the reminder.
	clock.Advance(time.Hour)
	count, err = sched.RemindUnpaid(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, notifs.userByType(models.UserNotifPaymentReminder), 1)
}

func TestRemindUnpaidSkipsPaid(t *testing.T) {
	sched, orders, notifs, _, clock := schedulerEnv(t)
	ctx := context.Background()

	seedOrder(t, orders, clock.Now().Add(-30*time.Hour), true, models.StatusPending)

	count, err := sched.RemindUnpaid(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, notifs.userByType(models.UserNotifPaymentReminder))
}

func TestSchedulerStartStop(t *testing.T) {
	sched, orders, _, _, clock := schedulerEnv(t)

	seedOrder(t, orders, clock.Now().Add(-49*time.Hour), false, models.StatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	// Stop blocks until the initial pass has finished.
	sched.Stop()

	got, err := orders.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusCancelled, got[0].Status)
}
