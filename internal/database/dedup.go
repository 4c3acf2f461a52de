package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store owns deduplication state: notification dedup keys and health-check run timestamps.
// Every conditional write holds a per-key lock for the duration of one transaction.
type Store struct {
	db    *gorm.DB
	locks *keyedMutex
	now   func() time.Time
}

// NewStore creates a store on top of db
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

// SetClock overrides the time source; used by tests that need to move time forward
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current time in UTC
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// DB returns the underlying database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// withKeyLock runs fn inside a transaction that holds the lock for key.
// PostgreSQL uses a transaction-scoped advisory lock so that concurrent
// instances serialize too; SQLite relies on its single writer.
func (s *Store) withKeyLock(ctx context.Context, key string, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
				return fmt.Errorf("failed to acquire advisory lock: %w", err)
			}
		}
		return fn(tx)
	})
}

func notificationLockKey(recipientID uint, dedupKey string) string {
	return fmt.Sprintf("notification:%d:%s", recipientID, dedupKey)
}

func healthCheckLockKey(kind HealthCheckKind) string {
	return "health_check:" + string(kind)
}

// latestActiveNotification returns the most recent non-dismissed notification for the pair
func latestActiveNotification(tx *gorm.DB, recipientID uint, dedupKey string) (*Notification, error) {
	var n Notification
	err := tx.Where("recipient_id = ? AND dedup_key = ? AND is_dismissed = ?", recipientID, dedupKey, false).
		Order("created_at DESC").
		Limit(1).
		Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// withinWindow reports whether a and b are closer than window
func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

// ShouldSendNotification reports whether no non-dismissed notification with the same
// recipient and dedup key was created within cooldown. It is advisory only; the
// dispatcher relies on InsertNotificationIfAbsent.
func (s *Store) ShouldSendNotification(ctx context.Context, recipientID uint, dedupKey string, cooldown time.Duration) (bool, error) {
	last, err := latestActiveNotification(s.db.WithContext(ctx), recipientID, dedupKey)
	if err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return !withinWindow(s.Now(), last.CreatedAt, cooldown), nil
}

// InsertNotificationIfAbsent inserts n unless a non-dismissed notification with the same
// recipient and dedup key exists within cooldown of n's creation time.
// The check and the insert happen under one lock, so concurrent callers cannot both insert.
func (s *Store) InsertNotificationIfAbsent(ctx context.Context, n *Notification, cooldown time.Duration) (bool, error) {
	if n.RecipientID == 0 || n.DedupKey == "" {
		return false, fmt.Errorf("notification requires recipient and dedup key")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	inserted := false
	err := s.withKeyLock(ctx, notificationLockKey(n.RecipientID, n.DedupKey), func(tx *gorm.DB) error {
		last, err := latestActiveNotification(tx, n.RecipientID, n.DedupKey)
		if err != nil {
			return fmt.Errorf("failed to query notifications: %w", err)
		}
		if last != nil && withinWindow(n.CreatedAt, last.CreatedAt, cooldown) {
			return nil
		}
		if err := tx.Create(n).Error; err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// latestHealthCheckRun returns the most recent run of kind, or nil
func latestHealthCheckRun(tx *gorm.DB, kind HealthCheckKind) (*HealthCheckRun, error) {
	var run HealthCheckRun
	err := tx.Where("check_kind = ?", kind).
		Order("ran_at DESC").
		Limit(1).
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ShouldRunHealthCheck reports whether no run of kind started within interval.
// It is advisory only; the scheduler claims runs with TryStartHealthCheckRun.
func (s *Store) ShouldRunHealthCheck(ctx context.Context, kind HealthCheckKind, interval time.Duration) (bool, error) {
	last, err := latestHealthCheckRun(s.db.WithContext(ctx), kind)
	if err != nil {
		return false, fmt.Errorf("failed to query health check runs: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return !withinWindow(s.Now(), last.RanAt, interval), nil
}

// TryStartHealthCheckRun atomically claims a run of kind at now.
// It returns (nil, false, nil) when another run started within interval.
func (s *Store) TryStartHealthCheckRun(ctx context.Context, kind HealthCheckKind, interval time.Duration, now time.Time) (*HealthCheckRun, bool, error) {
	now = now.UTC()

	var claimed *HealthCheckRun
	err := s.withKeyLock(ctx, healthCheckLockKey(kind), func(tx *gorm.DB) error {
		last, err := latestHealthCheckRun(tx, kind)
		if err != nil {
			return fmt.Errorf("failed to query health check runs: %w", err)
		}
		if last != nil && withinWindow(now, last.RanAt, interval) {
			return nil
		}
		run := &HealthCheckRun{CheckKind: kind, RanAt: now}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to create health check run: %w", err)
		}
		claimed = run
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return claimed, claimed != nil, nil
}

// FinishHealthCheckRun finalizes a claimed run with its outcome
func (s *Store) FinishHealthCheckRun(ctx context.Context, id uint, created, evaluated int, runErr error) error {
	finished := s.Now()
	updates := map[string]interface{}{
		"finished_at":           &finished,
		"notifications_created": created,
		"candidates_evaluated":  evaluated,
		"error_message":         errorMessage(runErr),
	}
	result := s.db.WithContext(ctx).Model(&HealthCheckRun{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finish health check run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("health check run %d not found", id)
	}
	return nil
}

// RecordHealthCheckRun unconditionally records a completed run.
// It is used when a run was accepted without a store claim.
func (s *Store) RecordHealthCheckRun(ctx context.Context, kind HealthCheckKind, ranAt time.Time, created, evaluated int, runErr error) (*HealthCheckRun, error) {
	finished := s.Now()
	run := &HealthCheckRun{
		CheckKind:            kind,
		RanAt:                ranAt.UTC(),
		FinishedAt:           &finished,
		NotificationsCreated: created,
		CandidatesEvaluated:  evaluated,
		ErrorMessage:         errorMessage(runErr),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record health check run: %w", err)
	}
	return run, nil
}

// ListHealthCheckRuns returns the most recent runs, optionally filtered by kind
func (s *Store) ListHealthCheckRuns(ctx context.Context, kind HealthCheckKind, limit int) ([]HealthCheckRun, error) {
	query := s.db.WithContext(ctx).Model(&HealthCheckRun{})
	if kind != "" {
		query = query.Where("check_kind = ?", kind)
	}
	if limit <= 0 {
		limit = 50
	}

	var runs []HealthCheckRun
	if err := query.Order("ran_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list health check runs: %w", err)
	}
	return runs, nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
