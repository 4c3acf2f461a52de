package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
)

// FactSource reads the inventory state a health check evaluates.
// Implementations must not write.
type FactSource interface {
	ListLowStockCandidates(ctx context.Context) ([]alerts.StockFact, error)
	ListExpiringCandidates(ctx context.Context, windowDays int) ([]alerts.ExpiryFact, error)
}

// Recipient is a user who may receive notifications
type Recipient struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RecipientDirectory lists users eligible for alerts
type RecipientDirectory interface {
	ListEligibleRecipients(ctx context.Context, role string) ([]Recipient, error)
}

// GormFactSource reads products and batches from the inventory tables
type GormFactSource struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormFactSource creates a fact source on db
func NewGormFactSource(db *gorm.DB) *GormFactSource {
	return &GormFactSource{db: db, now: time.Now}
}

// SetClock overrides the time used to compute days until expiry
func (f *GormFactSource) SetClock(now func() time.Time) {
	f.now = now
}

// ListLowStockCandidates returns active products at or below their reorder threshold,
// plus any product that is out of stock regardless of threshold
func (f *GormFactSource) ListLowStockCandidates(ctx context.Context) ([]alerts.StockFact, error) {
	var products []database.Product
	err := f.db.WithContext(ctx).
		Where("active = ?", true).
		Where("quantity <= 0 OR (reorder_threshold > 0 AND quantity <= reorder_threshold)").
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}

	facts := make([]alerts.StockFact, 0, len(products))
	for _, p := range products {
		facts = append(facts, alerts.StockFact{
			SubjectID:        strconv.FormatUint(uint64(p.ID), 10),
			Name:             p.Name,
			CurrentQuantity:  p.Quantity,
			ReorderThreshold: p.ReorderThreshold,
		})
	}
	return facts, nil
}

type expiringBatchRow struct {
	ProductID uint
	Name      string
	Lot       string
	Quantity  int
	ExpiresAt time.Time
}

// ListExpiringCandidates returns stocked batches of active products expiring
// between today and windowDays from today, in calendar days (UTC)
func (f *GormFactSource) ListExpiringCandidates(ctx context.Context, windowDays int) ([]alerts.ExpiryFact, error) {
	if windowDays <= 0 {
		windowDays = alerts.DefaultExpiryWindowDays
	}
	today := startOfDay(f.now())
	until := today.AddDate(0, 0, windowDays+1)

	var rows []expiringBatchRow
	err := f.db.WithContext(ctx).
		Table("product_batches").
		Select("product_batches.product_id, products.name, product_batches.lot, product_batches.quantity, product_batches.expires_at").
		Joins("JOIN products ON products.id = product_batches.product_id").
		Where("products.active = ?", true).
		Where("product_batches.quantity > 0").
		Where("product_batches.expires_at >= ? AND product_batches.expires_at < ?", today, until).
		Order("product_batches.expires_at").
		Order("product_batches.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring batches: %w", err)
	}

	facts := make([]alerts.ExpiryFact, 0, len(rows))
	for _, r := range rows {
		facts = append(facts, alerts.ExpiryFact{
			SubjectID:       strconv.FormatUint(uint64(r.ProductID), 10),
			Name:            r.Name,
			Lot:             r.Lot,
			Quantity:        r.Quantity,
			DaysUntilExpiry: daysBetween(today, r.ExpiresAt),
		})
	}
	return facts, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from today to the day of t
func daysBetween(today, t time.Time) int {
	return int(startOfDay(t).Sub(today).Hours() / 24)
}

// GormRecipientDirectory reads recipients from the users table
type GormRecipientDirectory struct {
	db *gorm.DB
}

// NewGormRecipientDirectory creates a directory on db
func NewGormRecipientDirectory(db *gorm.DB) *GormRecipientDirectory {
	return &GormRecipientDirectory{db: db}
}

// ListEligibleRecipients returns active users with role, ordered by id
func (d *GormRecipientDirectory) ListEligibleRecipients(ctx context.Context, role string) ([]Recipient, error) {
	var users []database.User
	err := d.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, Recipient{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return recipients, nil
}
