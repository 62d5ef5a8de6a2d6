package store

import (
	"context"
	"fmt"

	"storefront-core/internal/models"
)

// InsertNotification appends an admin feed entry.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (type, data)
		VALUES ($1, $2)
		RETURNING id, created_at`

	if err := s.db.QueryRowxContext(ctx, query, n.Type, []byte(n.Data)).
		Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// ListNotifications retrieves the admin feed, newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag on one admin feed entry.
func (s *Store) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: notification %d", models.ErrNotFound, id)
	}
	return nil
}

// InsertUserNotification appends a per-user feed entry. The store does not
// deduplicate; producers that need at-most-one semantics check with
// HasUserNotificationForOrder first.
func (s *Store) InsertUserNotification(ctx context.Context, n *models.UserNotification) error {
	query := `
		INSERT INTO user_notifications (user_id, type, data)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	if err := s.db.QueryRowxContext(ctx, query, n.UserID, n.Type, []byte(n.Data)).
		Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// ListUserNotifications retrieves a user's feed, newest first. The client
// polls this for unread entries.
func (s *Store) ListUserNotifications(ctx context.Context, userID string) ([]models.UserNotification, error) {
	var notifications []models.UserNotification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM user_notifications WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return notifications, nil
}

// MarkUserNotificationRead flips the read flag on one of the user's entries.
func (s *Store) MarkUserNotificationRead(ctx context.Context, id int64, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user notification %d", models.ErrNotFound, id)
	}
	return nil
}

// MarkAllUserNotificationsRead flips the read flag on every unread entry of
// the user's feed and returns the count modified.
func (s *Store) MarkAllUserNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE",
		userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return affected, nil
}

// HasUserNotificationForOrder reports whether the user already has an entry
// of the given type referencing the order. Used to deduplicate payment
// reminders across sweeps.
func (s *Store) HasUserNotificationForOrder(ctx context.Context, userID string, typ models.UserNotificationType, orderID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
			SELECT 1 FROM user_notifications
			WHERE user_id = $1 AND type = $2 AND data->>'order_id' = $3
		)`,
		userID, typ, orderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return exists, nil
}
