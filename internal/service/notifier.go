package service

import (
	"context"
	"fmt"

	"storefront-core/internal/models"
	"storefront-core/internal/util"

	"go.uber.org/zap"
)

// Dispatcher fans events out to the admin feed, the per-user feed and the
// best-effort external channel. Feed writes are durable appends; the external
// channel is fire-and-forget and can never fail a caller.
type Dispatcher struct {
	store    NotificationStore
	external ExternalSender
	logger   *zap.Logger
}

// NewDispatcher creates a new notification dispatcher. external may be nil,
// in which case the side channel is a no-op.
func NewDispatcher(store NotificationStore, external ExternalSender) *Dispatcher {
	return &Dispatcher{
		store:    store,
		external: external,
		logger:   util.Named("notifier"),
	}
}

// NotifyAdmin appends an entry to the admin feed.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, typ string, payload interface{}) error {
	n := &models.Notification{
		Type: typ,
		Data: models.MarshalPayload(payload),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	util.NotificationsDispatched.WithLabelValues("admin", typ).Inc()
	return nil
}

// NotifyUser appends an entry to a user's feed. The client polls the feed for
// unread entries; nothing is pushed.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID string, typ models.UserNotificationType, payload interface{}) error {
	n := &models.UserNotification{
		UserID: userID,
		Type:   typ,
		Data:   models.MarshalPayload(payload),
	}
	if err := d.store.InsertUserNotification(ctx, n); err != nil {
		return fmt.Errorf("notify user: %w", err)
	}
	util.NotificationsDispatched.WithLabelValues("user", string(typ)).Inc()
	return nil
}

// SeenForOrder reports whether the user's feed already holds an entry of the
// given type for the order. Producers that need at-most-one semantics (the
// payment reminder pass) check this before dispatching.
func (d *Dispatcher) SeenForOrder(ctx context.Context, userID string, typ models.UserNotificationType, orderID string) (bool, error) {
	return d.store.HasUserNotificationForOrder(ctx, userID, typ, orderID)
}

// NotifyExternalChannel sends a message on the side channel. All failures are
// swallowed and logged: the order pipeline's correctness never depends on
// this channel succeeding.
func (d *Dispatcher) NotifyExternalChannel(to, subject, body string) {
	if d.external == nil || to == "" {
		return
	}
	if err := d.external.Send(to, subject, body); err != nil {
		util.ExternalChannelFailures.Inc()
		d.logger.Warn("External channel send failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
	}
}
