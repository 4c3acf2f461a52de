package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/testhelpers"
)

type failingFactSource struct {
	err error
}

func (f failingFactSource) ListLowStockCandidates(ctx context.Context) ([]alerts.StockFact, error) {
	return nil, f.err
}

func (f failingFactSource) ListExpiringCandidates(ctx context.Context, windowDays int) ([]alerts.ExpiryFact, error) {
	return nil, f.err
}

func newHealthCheckFixture(t *testing.T, settings database.AlertSettings) (*dispatchFixture, *HealthCheckService, *GormFactSource) {
	t.Helper()
	f := newDispatchFixture(t, settings)
	facts := NewGormFactSource(f.db)
	facts.SetClock(f.clock.Now)
	dispatcher := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher)
	return f, NewHealthCheckService(f.store, facts, dispatcher), facts
}

func TestRunPass_LowStockHighSeverity(t *testing.T) {
	f, svc, _ := newHealthCheckFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	f.seedAdmins(t, "Ana")
	p := testhelpers.NewProductBuilder().WithName("Amoxicillin").WithStock(30, 80).Build()
	testhelpers.MustCreate(t, f.db, &p)

	result, err := svc.RunPass(context.Background(), database.HealthCheckStockLevels)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Evaluated != 1 || result.Created != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	n := f.publisher.notifications[0]
	if n.RuleKind != string(alerts.RuleLowStock) || n.Severity != string(alerts.SeverityHigh) {
		t.Errorf("expected LOW_STOCK/HIGH, got %s/%s", n.RuleKind, n.Severity)
	}
	if n.Summary != "Low stock: Amoxicillin has 30 units left (reorder at 80)" {
		t.Errorf("unexpected summary %q", n.Summary)
	}
}

func TestRunPass_OutOfStockEscalatesByEmail(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().WithEmailEscalation().Build())
	f.seedAdmins(t, "Ana")
	p := testhelpers.NewProductBuilder().WithName("Insulin").WithStock(0, 10).Build()
	testhelpers.MustCreate(t, f.db, &p)

	var sentTo []string
	send := func(ctx context.Context, to, subject, htmlBody string) error {
		sentTo = append(sentTo, to)
		return errors.New("mail relay rejected message")
	}
	dispatcher := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), f.publisher, NewEmailEscalator(send))
	svc := NewHealthCheckService(f.store, NewGormFactSource(f.db), dispatcher)

	result, err := svc.RunPass(context.Background(), database.HealthCheckStockLevels)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	dispatcher.Wait()

	if result.Created != 1 {
		t.Fatalf("expected 1 notification, got %+v", result)
	}
	if f.publisher.notifications[0].Severity != string(alerts.SeverityCritical) {
		t.Errorf("expected CRITICAL, got %s", f.publisher.notifications[0].Severity)
	}
	if len(sentTo) != 1 || sentTo[0] != "ana@example.com" {
		t.Errorf("expected one email attempt to ana@example.com, got %v", sentTo)
	}
}

func TestRunPass_Expiry(t *testing.T) {
	f, svc, _ := newHealthCheckFixture(t, testhelpers.NewAlertSettingsBuilder().WithExpiryWindow(30).Build())
	f.seedAdmins(t, "Ana")
	p := testhelpers.NewProductBuilder().WithName("Vaccine").Build()
	testhelpers.MustCreate(t, f.db, &p)
	near := testhelpers.NewBatchBuilder(p.ID).WithLot("A1").ExpiringInDays(f.clock.Now(), 5).Build()
	far := testhelpers.NewBatchBuilder(p.ID).WithLot("A2").ExpiringInDays(f.clock.Now(), 20).Build()
	testhelpers.MustCreate(t, f.db, &near, &far)

	result, err := svc.RunPass(context.Background(), database.HealthCheckExpiry)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Evaluated != 1 || result.Created != 1 {
		t.Fatalf("expected one candidate for the product, got %+v", result)
	}
	n := f.publisher.notifications[0]
	if n.Severity != string(alerts.SeverityHigh) {
		t.Errorf("expected HIGH for 5 days, got %s", n.Severity)
	}
	if n.Summary != "Expiring soon: Vaccine (lot A1) expires in 5 days" {
		t.Errorf("unexpected summary %q", n.Summary)
	}
}

func TestRunPass_NothingToReport(t *testing.T) {
	f, svc, _ := newHealthCheckFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	p := testhelpers.NewProductBuilder().WithStock(100, 20).Build()
	testhelpers.MustCreate(t, f.db, &p)

	result, err := svc.RunPass(context.Background(), database.HealthCheckStockLevels)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Evaluated != 0 || result.Created != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRunPass_Errors(t *testing.T) {
	f := newDispatchFixture(t, testhelpers.NewAlertSettingsBuilder().Build())
	dispatcher := NewDispatcher(f.store, NewGormRecipientDirectory(f.db), nil)

	svc := NewHealthCheckService(f.store, failingFactSource{err: errors.New("inventory db down")}, dispatcher)
	if _, err := svc.RunPass(context.Background(), database.HealthCheckStockLevels); err == nil {
		t.Error("expected fact source error")
	}

	svc = NewHealthCheckService(f.store, NewGormFactSource(f.db), dispatcher)
	if _, err := svc.RunPass(context.Background(), database.HealthCheckKind("sales")); err == nil {
		t.Error("expected unknown kind error")
	}
}
