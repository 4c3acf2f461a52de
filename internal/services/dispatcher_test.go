package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/testhelpers"
)

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []*database.Notification
}

func (p *recordingPublisher) Publish(n *database.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notifications)
}

type fakeEscalator struct {
	name string
	err  error

	mu    sync.Mutex
	calls []string
}

func (e *fakeEscalator) Name() string {
	return e.name
}

func (e *fakeEscalator) Escalate(ctx context.Context, n *database.Notification, recipient Recipient) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, n.ID)
	return e.err
}

func (e *fakeEscalator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type staticDirectory struct {
	recipients []Recipient
	err        error
}

func (d staticDirectory) ListEligibleRecipients(ctx context.Context, role string) ([]Recipient, error) {
	return d.recipients, d.err
}

type dispatchFixture struct {
	db        *gorm.DB
	store     *database.Store
	clock     *testhelpers.FakeClock
	publisher *recordingPublisher
}

func newDispatchFixture(t *testing.T, settings database.AlertSettings) *dispatchFixture {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	testhelpers.MustCreate(t, db, &settings)

	clock := testhelpers.NewFakeClock()
	store := database.NewStore(db)
	store.SetClock(clock.Now)

	return &dispatchFixture{
		db:        db,
		store:     store,
		clock:     clock,
		publisher: &recordingPublisher{},
	}
}

func (f *dispatchFixture) seedAdmins(t *testing.T, names ...string) []database.User {
	t.Helper()
	users := make([]database.User, 0, len(names))
	for _, name := range names {
		u := testhelpers.NewUserBuilder().WithName(name).WithEmail(strings.ToLower(name) + "@example.com").Build()
		testhelpers.MustCreate(t, f.db, &u)
		users = append(users, u)
	}
	return users
}

func TestDispatch_CreatesAndPublishes(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	admins := f.seedAdmins(t, "Ana")
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)

	candidate := testhelpers.NewCandidateBuilder().WithSeverity(alerts.SeverityHigh).Build()
	result, err := d.Dispatch(context.Background(), []alerts.Candidate{candidate})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.Created != 1 || result.Suppressed != 0 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.RecipientID != admins[0].ID {
		t.Errorf("expected recipient %d, got %d", admins[0].ID, result.RecipientID)
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected 1 publish, got %d", f.publisher.count())
	}

	published := f.publisher.notifications[0]
	if published.ID == "" {
		t.Error("expected published notification to carry its ID")
	}
	if published.Severity != "HIGH" || published.DedupKey != candidate.DedupKey() {
		t.Errorf("unexpected notification %+v", published)
	}
	if !published.CreatedAt.Equal(testhelpers.DefaultTestTime) {
		t.Errorf("expected created_at from store clock, got %v", published.CreatedAt)
	}
}

func TestDispatch_IdempotentRerun(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	f.seedAdmins(t, "Ana")
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)

	candidates := []alerts.Candidate{
		testhelpers.NewCandidateBuilder().WithSubject("1", "Gauze").Build(),
		testhelpers.NewCandidateBuilder().WithSubject("2", "Saline").Build(),
	}

	first, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	f.clock.Advance(15 * time.Minute)
	second, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}

	if first.Created != 2 {
		t.Errorf("expected 2 created on first pass, got %d", first.Created)
	}
	if second.Created != 0 || second.Suppressed != 2 {
		t.Errorf("expected everything suppressed on rerun, got %+v", second)
	}
	if got := testhelpers.CountNotifications(t, f.db, 0); got != 2 {
		t.Errorf("expected 2 stored notifications, got %d", got)
	}
	if f.publisher.count() != 2 {
		t.Errorf("suppressed candidates must not be published, got %d publishes", f.publisher.count())
	}
}

func TestDispatch_AfterCooldownCreatesAgain(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().WithCooldown(24).Build())
	f.seedAdmins(t, "Ana")
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), nil)
	candidates := []alerts.Candidate{testhelpers.NewCandidateBuilder().Build()}

	d.Dispatch(context.Background(), candidates)
	f.clock.Advance(24 * time.Hour)
	result, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected a new notification after the cooldown, got %+v", result)
	}
}

func TestDispatch_SingleRecipientAmongThreeAdmins(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	admins := f.seedAdmins(t, "Ana", "Ben", "Cy")
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)

	candidate := testhelpers.NewCandidateBuilder().Build()
	if _, err := d.Dispatch(context.Background(), []alerts.Candidate{candidate}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := testhelpers.CountNotifications(t, f.db, 0); got != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", got)
	}
	if got := testhelpers.CountNotifications(t, f.db, admins[0].ID); got != 1 {
		t.Errorf("expected the lowest-id admin to receive it")
	}
}

func TestDispatch_DesignatedRecipient(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	ana := testhelpers.NewUserBuilder().WithName("Ana").Build()
	ben := testhelpers.NewUserBuilder().WithName("Ben").Build()
	testhelpers.MustCreate(t, db, &ana, &ben)
	settings := testhelpers.NewAlertSettingsBuilder().WithDesignatedRecipient(ben.ID).Build()
	testhelpers.MustCreate(t, db, &settings)

	d := NewDispatcher(database.NewStore(db), NewGormRecipientDirectory(db), nil)
	result, err := d.Dispatch(context.Background(), []alerts.Candidate{testhelpers.NewCandidateBuilder().Build()})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.RecipientID != ben.ID {
		t.Errorf("expected designated recipient %d, got %d", ben.ID, result.RecipientID)
	}
}

func TestDispatch_NoRecipient(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	pharmacist := testhelpers.NewUserBuilder().WithRole(database.UserRolePharmacist).Build()
	testhelpers.MustCreate(t, f.db, &pharmacist)
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)

	_, err := d.Dispatch(context.Background(), []alerts.Candidate{testhelpers.NewCandidateBuilder().Build()})
	if !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
	if got := testhelpers.CountNotifications(t, f.db, 0); got != 0 {
		t.Errorf("expected no notifications, got %d", got)
	}
}

func TestDispatch_EmptyCandidatesSkipsRecipientLookup(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	d := NewDispatcher(f.store, staticDirectory{err: errors.New("directory down")}, nil)

	result, err := d.Dispatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error for an empty pass, got %v", err)
	}
	if result.Created != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDispatch_CriticalEscalationFailureIsIgnored(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().WithEmailEscalation().Build())
	f.seedAdmins(t, "Ana")
	email := &fakeEscalator{name: EscalationEmail, err: errors.New("smtp unreachable")}
	slack := &fakeEscalator{name: EscalationSlack}
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher, email, slack)

	candidates := []alerts.Candidate{
		testhelpers.NewCandidateBuilder().WithSubject("1", "Gauze").Critical().Build(),
		testhelpers.NewCandidateBuilder().WithSubject("2", "Saline").Build(),
	}
	result, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("escalation failure must not fail the pass: %v", err)
	}
	d.Wait()

	if result.Created != 2 {
		t.Errorf("expected 2 created, got %+v", result)
	}
	if email.callCount() != 1 {
		t.Errorf("expected one email attempt for the critical candidate, got %d", email.callCount())
	}
	if slack.callCount() != 0 {
		t.Errorf("expected Slack escalation to stay off, got %d calls", slack.callCount())
	}
	if f.publisher.count() != 2 {
		t.Errorf("expected both notifications published, got %d", f.publisher.count())
	}
}

func TestDispatch_SuppressedCriticalIsNotEscalated(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().WithEmailEscalation().Build())
	f.seedAdmins(t, "Ana")
	email := &fakeEscalator{name: EscalationEmail}
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), nil, email)

	candidates := []alerts.Candidate{testhelpers.NewCandidateBuilder().Critical().Build()}
	d.Dispatch(context.Background(), candidates)
	d.Dispatch(context.Background(), candidates)
	d.Wait()

	if email.callCount() != 1 {
		t.Errorf("expected a single escalation, got %d", email.callCount())
	}
}

func TestDispatch_OnlyCriticalIsEscalated(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().WithEmailEscalation().Build())
	f.seedAdmins(t, "Ana")
	email := &fakeEscalator{name: EscalationEmail}
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), nil, email)

	candidates := []alerts.Candidate{
		testhelpers.NewCandidateBuilder().WithSubject("1", "Gauze").WithSeverity(alerts.SeverityHigh).Build(),
		testhelpers.NewCandidateBuilder().WithSubject("2", "Saline").WithSeverity(alerts.SeverityMedium).Build(),
		testhelpers.NewCandidateBuilder().WithSubject("3", "Insulin").Critical().Build(),
	}
	result, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	d.Wait()

	if result.Created != 3 {
		t.Fatalf("expected 3 notifications, got %+v", result)
	}
	if email.callCount() != 1 {
		t.Errorf("expected only the CRITICAL alert to escalate, got %d calls", email.callCount())
	}
}

func TestDispatch_StoreErrorsAreCounted(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	d := NewDispatcher(f.store, staticDirectory{recipients: []Recipient{{ID: 5, Name: "Ana"}}}, nil)

	candidates := []alerts.Candidate{
		testhelpers.NewCandidateBuilder().WithSubject("1", "Gauze").Build(),
		testhelpers.NewCandidateBuilder().WithSubject("2", "Saline").Build(),
	}
	if err := f.db.Migrator().DropTable(&database.Notification{}); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	result, err := d.Dispatch(context.Background(), candidates)
	if err == nil {
		t.Fatal("expected store errors to be reported")
	}
	if result.Failed != 2 || result.Created != 0 {
		t.Errorf("expected both candidates failed, got %+v", result)
	}
}

func TestDispatch_ConcurrentPassesCreateOnce(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	f.seedAdmins(t, "Ana")
	d := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)
	candidates := []alerts.Candidate{testhelpers.NewCandidateBuilder().Build()}

	var mu sync.Mutex
	created := 0
	testhelpers.ConcurrentTestWithTimeout(t, 10*time.Second, 8, func(int) {
		result, err := d.Dispatch(context.Background(), candidates)
		if err != nil {
			t.Errorf("Dispatch() error = %v", err)
			return
		}
		mu.Lock()
		created += result.Created
		mu.Unlock()
	})

	if created != 1 {
		t.Errorf("expected exactly 1 created across concurrent passes, got %d", created)
	}
	if got := testhelpers.CountNotifications(t, f.db, 0); got != 1 {
		t.Errorf("expected 1 stored notification, got %d", got)
	}
}
