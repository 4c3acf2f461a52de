package testhelpers

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
)

func TestProductBuilder(t *testing.T) {
	p := NewProductBuilder().WithID(7).WithName("Gauze").WithStock(3, 10).Build()

	if p.ID != 7 || p.Name != "Gauze" {
		t.Errorf("unexpected product %+v", p)
	}
	if p.Quantity != 3 || p.ReorderThreshold != 10 {
		t.Errorf("expected 3/10, got %d/%d", p.Quantity, p.ReorderThreshold)
	}
	if !p.Active {
		t.Error("expected product to be active")
	}
	if NewProductBuilder().Inactive().Build().Active {
		t.Error("expected Inactive to clear Active")
	}
}

func TestBatchBuilder_ExpiringInDays(t *testing.T) {
	from := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	b := NewBatchBuilder(4).ExpiringInDays(from, 3).Build()

	want := time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC)
	if !b.ExpiresAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, b.ExpiresAt)
	}
	if b.ProductID != 4 || b.Lot != "LOT-4" {
		t.Errorf("unexpected batch %+v", b)
	}
}

func TestUserBuilder(t *testing.T) {
	u := NewUserBuilder().WithName("Dana").WithRole(database.UserRolePharmacist).Inactive().Build()

	if u.Name != "Dana" || u.Role != database.UserRolePharmacist || u.Active {
		t.Errorf("unexpected user %+v", u)
	}
}

func TestCandidateBuilder_Critical(t *testing.T) {
	c := NewCandidateBuilder().WithSubject("9", "Insulin").Critical().Build()

	if c.RuleKind != alerts.RuleCriticalStock || c.Severity != alerts.SeverityCritical {
		t.Errorf("unexpected candidate %+v", c)
	}
	if c.Facts.CurrentQuantity != 0 {
		t.Errorf("expected quantity 0, got %d", c.Facts.CurrentQuantity)
	}
}

func TestNotificationBuilder_ForCandidate(t *testing.T) {
	c := NewCandidateBuilder().WithSubject("9", "Insulin").Critical().Build()
	n := NewNotificationBuilder(3).ForCandidate(c).Dismissed().Build()

	if n.RecipientID != 3 {
		t.Errorf("expected recipient 3, got %d", n.RecipientID)
	}
	if n.DedupKey != c.DedupKey() {
		t.Error("expected dedup key copied from candidate")
	}
	if !n.IsDismissed || n.DismissedAt == nil {
		t.Error("expected dismissed notification")
	}
	if n.IsRead {
		t.Error("expected notification to be unread")
	}
}

func TestAlertSettingsBuilder(t *testing.T) {
	s := NewAlertSettingsBuilder().WithInterval(5).WithDesignatedRecipient(2).WithEmailEscalation().Build()

	if s.HealthCheckIntervalMinutes != 5 {
		t.Errorf("expected interval 5, got %d", s.HealthCheckIntervalMinutes)
	}
	if s.RecipientPolicy != database.RecipientPolicyDesignated || s.DesignatedRecipientID == nil || *s.DesignatedRecipientID != 2 {
		t.Errorf("unexpected recipient policy %+v", s)
	}
	if !s.EmailEscalationEnabled || s.SlackEscalationEnabled {
		t.Errorf("unexpected escalation flags %+v", s)
	}
}

func TestSlackSettingsBuilder(t *testing.T) {
	active := NewSlackSettingsBuilder().Build()
	if !active.IsActive() {
		t.Error("expected default Slack settings to be active")
	}
	s := NewSlackSettingsBuilder().Unconfigured().Build()
	if s.IsConfigured() {
		t.Error("expected unconfigured settings")
	}
}

func TestSetupTestDB_MigratesAndCounts(t *testing.T) {
	db := SetupTestDB(t)

	user := NewUserBuilder().Build()
	MustCreate(t, db, &user)
	n1 := NewNotificationBuilder(user.ID).Build()
	n2 := NewNotificationBuilder(user.ID).WithID("fixed-id").CreatedAt(DefaultTestTime.Add(time.Hour)).Build()
	MustCreate(t, db, &n1, &n2)

	if got := CountNotifications(t, db, user.ID); got != 2 {
		t.Errorf("expected 2 notifications, got %d", got)
	}
	if got := CountNotifications(t, db, user.ID+1); got != 0 {
		t.Errorf("expected 0 notifications for other user, got %d", got)
	}

	run := database.HealthCheckRun{CheckKind: database.HealthCheckExpiry, RanAt: DefaultTestTime}
	MustCreate(t, db, &run)
	if runs := HealthCheckRuns(t, db, database.HealthCheckExpiry); len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestFakeClock(t *testing.T) {
	clock := NewFakeClock()
	if !clock.Now().Equal(DefaultTestTime) {
		t.Errorf("expected %v, got %v", DefaultTestTime, clock.Now())
	}
	clock.Advance(15 * time.Minute)
	AssertTimeWithin(t, clock.Now(), DefaultTestTime.Add(15*time.Minute), 0, "advanced clock")
}

func TestConcurrentTest(t *testing.T) {
	var count atomic.Int32
	ConcurrentTestWithTimeout(t, time.Second, 10, func(int) {
		count.Add(1)
	})
	if count.Load() != 10 {
		t.Errorf("expected 10 calls, got %d", count.Load())
	}
}

func TestHTTPTestContext(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"auth":"` + r.Header.Get("Authorization") + `","count":2}`))
	})

	ctx := NewHTTPTestContext(t, http.MethodPost, "/api/test", nil).
		WithBearerToken("abc").
		WithJSONBody(map[string]string{"k": "v"}).
		Execute(handler).
		AssertStatus(http.StatusOK).
		AssertBodyContains("Bearer abc")

	AssertJSONKeyValue(t, ctx.Recorder.Body.String(), "count", 2, "count")
}
