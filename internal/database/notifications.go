package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotificationNotFound is returned when no notification has the requested ID
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrNotificationNotDismissed is returned when deleting a notification that is still active
	ErrNotificationNotDismissed = errors.New("notification must be dismissed before it can be deleted")
)

// NotificationFilter narrows ListNotifications
type NotificationFilter struct {
	RecipientID uint
	Since       *time.Time
	UnreadOnly  bool
	Severities  []string
	Offset      int
	Limit       int
}

// ListNotifications returns notifications matching filter, newest first, and the total count
func (s *Store) ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.RecipientID != 0 {
			db = db.Where("recipient_id = ?", filter.RecipientID)
		}
		if filter.Since != nil {
			db = db.Where("created_at > ?", filter.Since.UTC())
		}
		if filter.UnreadOnly {
			db = db.Where("is_read = ? AND is_dismissed = ?", false, false)
		}
		if len(filter.Severities) > 0 {
			db = db.Where("severity IN ?", filter.Severities)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Notification{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := s.db.WithContext(ctx).Model(&Notification{}).Scopes(scope)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var notifications []Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

// ListNotificationsSince returns a recipient's notifications created after since, oldest first.
// It is the catch-up read used when a realtime subscriber connects.
func (s *Store) ListNotificationsSince(ctx context.Context, recipientID uint, since time.Time, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 500
	}

	var notifications []Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ? AND created_at > ?", recipientID, since.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications since %s: %w", since.Format(time.RFC3339), err)
	}
	return notifications, nil
}

// GetNotification returns a notification by ID
func (s *Store) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// MarkNotificationRead sets is_read; marking twice keeps the first read time
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}

	now := s.Now()
	if err := s.db.WithContext(ctx).Model(n).Updates(map[string]interface{}{
		"is_read": true,
		"read_at": &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return n, nil
}

// DismissNotification sets is_dismissed. A dismissed notification no longer
// suppresses new notifications with the same dedup key.
func (s *Store) DismissNotification(ctx context.Context, id string) (*Notification, error) {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsDismissed {
		return n, nil
	}

	now := s.Now()
	if err := s.db.WithContext(ctx).Model(n).Updates(map[string]interface{}{
		"is_dismissed": true,
		"dismissed_at": &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to dismiss notification: %w", err)
	}
	n.IsDismissed = true
	n.DismissedAt = &now
	return n, nil
}

// DeleteNotification removes a dismissed notification.
// Active notifications are refused with ErrNotificationNotDismissed.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if !n.IsDismissed {
		return ErrNotificationNotDismissed
	}
	if err := s.db.WithContext(ctx).Delete(&Notification{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// PurgeNotifications deletes read or dismissed notifications created before cutoff.
// Unread, undismissed notifications are kept regardless of age.
func (s *Store) PurgeNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ? AND (is_read = ? OR is_dismissed = ?)", cutoff.UTC(), true, true).
		Delete(&Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeHealthCheckRuns deletes run records started before cutoff,
// keeping the latest run of every kind so the debounce window survives.
func (s *Store) PurgeHealthCheckRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for _, kind := range ValidHealthCheckKinds() {
		latest, err := latestHealthCheckRun(s.db.WithContext(ctx), kind)
		if err != nil {
			return purged, fmt.Errorf("failed to query health check runs: %w", err)
		}
		if latest == nil {
			continue
		}
		result := s.db.WithContext(ctx).
			Where("check_kind = ? AND ran_at < ? AND id <> ?", kind, cutoff.UTC(), latest.ID).
			Delete(&HealthCheckRun{})
		if result.Error != nil {
			return purged, fmt.Errorf("failed to purge health check runs: %w", result.Error)
		}
		purged += result.RowsAffected
	}
	return purged, nil
}
