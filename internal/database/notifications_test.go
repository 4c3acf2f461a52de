package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedNotifications(t *testing.T, store *Store, clock *fakeClock, recipientID uint, count int) []*Notification {
	t.Helper()
	var created []*Notification
	for i := 0; i < count; i++ {
		n := newTestNotification(recipientID, "key-"+string(rune('a'+i)))
		if _, err := store.InsertNotificationIfAbsent(context.Background(), n, time.Hour); err != nil {
			t.Fatalf("failed to seed notification: %v", err)
		}
		created = append(created, n)
		clock.Advance(time.Minute)
	}
	return created
}

func TestListNotifications_Filters(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	start := clock.Now()
	mine := seedNotifications(t, store, clock, 1, 3)
	seedNotifications(t, store, clock, 2, 2)

	if _, err := store.MarkNotificationRead(ctx, mine[0].ID); err != nil {
		t.Fatalf("failed to mark read: %v", err)
	}

	list, total, err := store.ListNotifications(ctx, NotificationFilter{RecipientID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Errorf("expected 3 notifications for recipient 1, got %d/%d", len(list), total)
	}
	if list[0].ID != mine[2].ID {
		t.Error("expected newest notification first")
	}

	unread, total, _ := store.ListNotifications(ctx, NotificationFilter{RecipientID: 1, UnreadOnly: true})
	if total != 2 || len(unread) != 2 {
		t.Errorf("expected 2 unread, got %d/%d", len(unread), total)
	}

	since := start.Add(30 * time.Second)
	recent, _, _ := store.ListNotifications(ctx, NotificationFilter{RecipientID: 1, Since: &since})
	if len(recent) != 2 {
		t.Errorf("expected 2 notifications after since, got %d", len(recent))
	}

	page, total, _ := store.ListNotifications(ctx, NotificationFilter{Limit: 2, Offset: 2})
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2, got %d", len(page))
	}
}

func TestListNotificationsSince_OldestFirst(t *testing.T) {
	store, clock := newTestStore(t)

	since := clock.Now().Add(-time.Second)
	created := seedNotifications(t, store, clock, 1, 3)

	list, err := store.ListNotificationsSince(context.Background(), 1, since, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
	if list[0].ID != created[0].ID || list[2].ID != created[2].ID {
		t.Error("expected catch-up in creation order")
	}

	list, _ = store.ListNotificationsSince(context.Background(), 1, created[1].CreatedAt, 0)
	if len(list) != 1 || list[0].ID != created[2].ID {
		t.Errorf("expected only notifications strictly after since, got %d", len(list))
	}
}

func TestMarkNotificationRead_KeepsFirstReadTime(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	n := seedNotifications(t, store, clock, 1, 1)[0]

	first, err := store.MarkNotificationRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(time.Hour)
	second, _ := store.MarkNotificationRead(ctx, n.ID)
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Errorf("expected read_at to stay %v, got %v", first.ReadAt, second.ReadAt)
	}

	if _, err := store.MarkNotificationRead(ctx, "missing"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestDeleteNotification_RequiresDismissal(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	n := seedNotifications(t, store, clock, 1, 1)[0]

	if err := store.DeleteNotification(ctx, n.ID); !errors.Is(err, ErrNotificationNotDismissed) {
		t.Fatalf("expected ErrNotificationNotDismissed, got %v", err)
	}

	if _, err := store.DismissNotification(ctx, n.ID); err != nil {
		t.Fatalf("failed to dismiss: %v", err)
	}
	if err := store.DeleteNotification(ctx, n.ID); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := store.GetNotification(ctx, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("expected notification to be gone, got %v", err)
	}
	if err := store.DeleteNotification(ctx, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound on second delete, got %v", err)
	}
}

func TestPurgeNotifications(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	old := seedNotifications(t, store, clock, 1, 3)
	store.MarkNotificationRead(ctx, old[0].ID)
	store.DismissNotification(ctx, old[1].ID)

	clock.Advance(100 * 24 * time.Hour)
	fresh := seedNotifications(t, store, clock, 1, 1)
	store.MarkNotificationRead(ctx, fresh[0].ID)

	purged, err := store.PurgeNotifications(ctx, clock.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged, got %d", purged)
	}

	if _, err := store.GetNotification(ctx, old[2].ID); err != nil {
		t.Error("expected old unread notification to be kept")
	}
	if _, err := store.GetNotification(ctx, fresh[0].ID); err != nil {
		t.Error("expected recent read notification to be kept")
	}
}

func TestPurgeHealthCheckRuns_KeepsLatestPerKind(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store.TryStartHealthCheckRun(ctx, HealthCheckStockLevels, time.Minute, clock.Now())
		clock.Advance(time.Hour)
	}
	store.TryStartHealthCheckRun(ctx, HealthCheckExpiry, time.Minute, clock.Now().Add(-2*time.Hour))

	purged, err := store.PurgeHealthCheckRuns(ctx, clock.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged, got %d", purged)
	}

	runs, _ := store.ListHealthCheckRuns(ctx, "", 0)
	if len(runs) != 2 {
		t.Errorf("expected latest run of each kind to remain, got %d", len(runs))
	}
}
