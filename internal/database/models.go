package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// UserRole is the role a user holds in the inventory application
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRolePharmacist UserRole = "pharmacist"
	UserRoleEmployee   UserRole = "employee"
)

// User is a person who can receive notifications.
// Users are owned by the inventory application; this service only reads them.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Role      UserRole  `gorm:"size:32;index;not null" json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a stocked item with a reorder threshold
type Product struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	SKU              string    `gorm:"size:64;index" json:"sku"`
	Quantity         int       `gorm:"not null;default:0" json:"quantity"`
	ReorderThreshold int       `gorm:"not null;default:0" json:"reorder_threshold"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Batches []ProductBatch `gorm:"foreignKey:ProductID" json:"batches,omitempty"`
}

// ProductBatch is a lot of a product with its own expiry date
type ProductBatch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Lot       string    `gorm:"size:64" json:"lot"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notification is a persisted, recipient-targeted alert
type Notification struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	RecipientID uint       `gorm:"not null;index:idx_notifications_dedup,priority:1" json:"recipient_id"`
	DedupKey    string     `gorm:"size:64;not null;index:idx_notifications_dedup,priority:2" json:"dedup_key"`
	RuleKind    string     `gorm:"size:32;not null" json:"rule_kind"`
	SubjectID   string     `gorm:"size:64;not null" json:"subject_id"`
	Severity    string     `gorm:"size:16;not null" json:"severity"`
	Summary     string     `gorm:"type:text" json:"summary"`
	Facts       JSONB      `gorm:"type:jsonb" json:"facts"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_notifications_dedup,priority:3" json:"created_at"`
	IsRead      bool       `gorm:"default:false" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	IsDismissed bool       `gorm:"default:false" json:"is_dismissed"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

// BeforeCreate assigns the notification ID and normalizes the creation time
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return nil
}

// HealthCheckKind names a periodic evaluation pass
type HealthCheckKind string

const (
	HealthCheckStockLevels HealthCheckKind = "stock_levels"
	HealthCheckExpiry      HealthCheckKind = "expiry"
)

// ValidHealthCheckKinds returns every check kind the scheduler knows about
func ValidHealthCheckKinds() []HealthCheckKind {
	return []HealthCheckKind{HealthCheckStockLevels, HealthCheckExpiry}
}

// IsValid reports whether the kind is known
func (k HealthCheckKind) IsValid() bool {
	for _, v := range ValidHealthCheckKinds() {
		if k == v {
			return true
		}
	}
	return false
}

// HealthCheckRun records one accepted evaluation pass.
// A row is written when the pass is claimed and finalized when it completes.
type HealthCheckRun struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	CheckKind            HealthCheckKind `gorm:"size:32;not null;index:idx_health_check_runs_kind,priority:1" json:"check_kind"`
	RanAt                time.Time       `gorm:"not null;index:idx_health_check_runs_kind,priority:2" json:"ran_at"`
	FinishedAt           *time.Time      `json:"finished_at,omitempty"`
	NotificationsCreated int             `gorm:"default:0" json:"notifications_created"`
	CandidatesEvaluated  int             `gorm:"default:0" json:"candidates_evaluated"`
	ErrorMessage         *string         `gorm:"type:text" json:"error_message,omitempty"`
}

// SlackSettings stores Slack escalation configuration
type SlackSettings struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BotToken      string    `gorm:"type:text" json:"bot_token"`
	AlertsChannel string    `gorm:"type:varchar(255)" json:"alerts_channel"`
	Enabled       bool      `gorm:"default:false" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsConfigured returns true if the bot token and channel are set
func (s *SlackSettings) IsConfigured() bool {
	return s.BotToken != "" && s.AlertsChannel != ""
}

// IsActive returns true if Slack is enabled and configured
func (s *SlackSettings) IsActive() bool {
	return s.Enabled && s.IsConfigured()
}

// TableName overrides for explicit table naming
func (User) TableName() string {
	return "users"
}

func (Product) TableName() string {
	return "products"
}

func (ProductBatch) TableName() string {
	return "product_batches"
}

func (Notification) TableName() string {
	return "notifications"
}

func (HealthCheckRun) TableName() string {
	return "health_check_runs"
}

func (SlackSettings) TableName() string {
	return "slack_settings"
}
