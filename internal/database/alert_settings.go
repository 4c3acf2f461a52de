package database

import (
	"time"

	"gorm.io/gorm"
)

// RecipientPolicy selects the single recipient of health-check alerts
type RecipientPolicy string

const (
	// RecipientPolicyLowestID picks the eligible user with the lowest id
	RecipientPolicyLowestID RecipientPolicy = "lowest_id"
	// RecipientPolicyDesignated picks DesignatedRecipientID, falling back to lowest id
	RecipientPolicyDesignated RecipientPolicy = "designated"
)

// AlertSettings controls health-check cadence, deduplication and escalation
type AlertSettings struct {
	ID                         uint            `gorm:"primaryKey" json:"id"`
	Enabled                    bool            `json:"enabled"`
	HealthCheckIntervalMinutes int             `gorm:"default:15" json:"health_check_interval_minutes"`
	HealthCheckTimeoutSeconds  int             `gorm:"default:60" json:"health_check_timeout_seconds"`
	DedupCooldownHours         int             `gorm:"default:24" json:"dedup_cooldown_hours"`
	ExpiryWindowDays           int             `gorm:"default:30" json:"expiry_window_days"`
	RetentionDays              int             `gorm:"default:90" json:"retention_days"`
	RecipientRole              string          `gorm:"size:32;default:admin" json:"recipient_role"`
	RecipientPolicy            RecipientPolicy `gorm:"size:32;default:lowest_id" json:"recipient_policy"`
	DesignatedRecipientID      *uint           `json:"designated_recipient_id,omitempty"`
	EmailEscalationEnabled     bool            `json:"email_escalation_enabled"`
	SlackEscalationEnabled     bool            `json:"slack_escalation_enabled"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

func (AlertSettings) TableName() string {
	return "alert_settings"
}

// NewDefaultAlertSettings returns settings with default values
func NewDefaultAlertSettings() *AlertSettings {
	return &AlertSettings{
		Enabled:                    true,
		HealthCheckIntervalMinutes: 15,
		HealthCheckTimeoutSeconds:  60,
		DedupCooldownHours:         24,
		ExpiryWindowDays:           30,
		RetentionDays:              90,
		RecipientRole:              string(UserRoleAdmin),
		RecipientPolicy:            RecipientPolicyLowestID,
		EmailEscalationEnabled:     true,
		SlackEscalationEnabled:     false,
	}
}

// HealthCheckInterval returns the minimum spacing between runs of one check kind
func (s *AlertSettings) HealthCheckInterval() time.Duration {
	return time.Duration(s.HealthCheckIntervalMinutes) * time.Minute
}

// HealthCheckTimeout returns the time budget of a single evaluation pass
func (s *AlertSettings) HealthCheckTimeout() time.Duration {
	return time.Duration(s.HealthCheckTimeoutSeconds) * time.Second
}

// DedupCooldown returns the window during which an equivalent alert is suppressed
func (s *AlertSettings) DedupCooldown() time.Duration {
	return time.Duration(s.DedupCooldownHours) * time.Hour
}

// Retention returns how long read or dismissed notifications are kept
func (s *AlertSettings) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// GetOrCreateAlertSettings retrieves or creates alert settings (singleton).
// The db parameter allows callers to pass a transaction or a test database.
func GetOrCreateAlertSettings(db *gorm.DB) (*AlertSettings, error) {
	return getOrCreateAlertSettings(db, NewDefaultAlertSettings())
}

func getOrCreateAlertSettings(db *gorm.DB, seed *AlertSettings) (*AlertSettings, error) {
	var settings AlertSettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *seed
		settings.ID = 0
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateAlertSettings persists alert settings.
// Save writes every column so that false and zero values are stored too.
func UpdateAlertSettings(db *gorm.DB, settings *AlertSettings) error {
	return db.Save(settings).Error
}
