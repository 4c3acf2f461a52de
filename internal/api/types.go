package api

import (
	"time"

	"github.com/stockalert/stockalert/internal/database"
)

// ========== Settings Types ==========

// UpdateAlertSettingsRequest is the request body for PUT /api/settings/alerting.
// Nil fields are left unchanged.
type UpdateAlertSettingsRequest struct {
	Enabled                    *bool   `json:"enabled"`
	HealthCheckIntervalMinutes *int    `json:"health_check_interval_minutes" validate:"omitnil,min=1,max=1440"`
	HealthCheckTimeoutSeconds  *int    `json:"health_check_timeout_seconds" validate:"omitnil,min=1,max=3600"`
	DedupCooldownHours         *int    `json:"dedup_cooldown_hours" validate:"omitnil,min=0,max=720"`
	ExpiryWindowDays           *int    `json:"expiry_window_days" validate:"omitnil,min=0,max=365"`
	RetentionDays              *int    `json:"retention_days" validate:"omitnil,min=0,max=3650"`
	RecipientRole              *string `json:"recipient_role" validate:"omitempty,oneof=admin pharmacist employee"`
	RecipientPolicy            *string `json:"recipient_policy" validate:"omitempty,oneof=lowest_id designated"`
	DesignatedRecipientID      *uint   `json:"designated_recipient_id"`
	EmailEscalationEnabled     *bool   `json:"email_escalation_enabled"`
	SlackEscalationEnabled     *bool   `json:"slack_escalation_enabled"`
}

// Apply copies the non-nil fields onto settings.
func (r UpdateAlertSettingsRequest) Apply(settings *database.AlertSettings) {
	if r.Enabled != nil {
		settings.Enabled = *r.Enabled
	}
	if r.HealthCheckIntervalMinutes != nil {
		settings.HealthCheckIntervalMinutes = *r.HealthCheckIntervalMinutes
	}
	if r.HealthCheckTimeoutSeconds != nil {
		settings.HealthCheckTimeoutSeconds = *r.HealthCheckTimeoutSeconds
	}
	if r.DedupCooldownHours != nil {
		settings.DedupCooldownHours = *r.DedupCooldownHours
	}
	if r.ExpiryWindowDays != nil {
		settings.ExpiryWindowDays = *r.ExpiryWindowDays
	}
	if r.RetentionDays != nil {
		settings.RetentionDays = *r.RetentionDays
	}
	if r.RecipientRole != nil {
		settings.RecipientRole = *r.RecipientRole
	}
	if r.RecipientPolicy != nil {
		settings.RecipientPolicy = database.RecipientPolicy(*r.RecipientPolicy)
	}
	if r.DesignatedRecipientID != nil {
		id := *r.DesignatedRecipientID
		if id == 0 {
			settings.DesignatedRecipientID = nil
		} else {
			settings.DesignatedRecipientID = &id
		}
	}
	if r.EmailEscalationEnabled != nil {
		settings.EmailEscalationEnabled = *r.EmailEscalationEnabled
	}
	if r.SlackEscalationEnabled != nil {
		settings.SlackEscalationEnabled = *r.SlackEscalationEnabled
	}
}

// UpdateSlackSettingsRequest is the request body for PUT /api/settings/slack.
type UpdateSlackSettingsRequest struct {
	BotToken      *string `json:"bot_token"`
	AlertsChannel *string `json:"alerts_channel" validate:"omitempty,max=255"`
	Enabled       *bool   `json:"enabled"`
}

// SlackSettingsResponse is Slack configuration with the bot token masked.
type SlackSettingsResponse struct {
	ID            uint      `json:"id"`
	BotToken      string    `json:"bot_token"`
	AlertsChannel string    `json:"alerts_channel"`
	Enabled       bool      `json:"enabled"`
	IsConfigured  bool      `json:"is_configured"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ========== Health Check Types ==========

// RunHealthCheckResponse is the response body for POST /api/health-checks/{kind}/run.
type RunHealthCheckResponse struct {
	Kind database.HealthCheckKind `json:"kind"`
	Ran  bool                     `json:"ran"`
}

// HealthCheckRunResponse is one recorded evaluation pass.
type HealthCheckRunResponse struct {
	ID                   uint                     `json:"id"`
	Kind                 database.HealthCheckKind `json:"kind"`
	RanAt                time.Time                `json:"ran_at"`
	FinishedAt           *time.Time               `json:"finished_at,omitempty"`
	DurationMs           *int64                   `json:"duration_ms,omitempty"`
	NotificationsCreated int                      `json:"notifications_created"`
	CandidatesEvaluated  int                      `json:"candidates_evaluated"`
	Error                string                   `json:"error,omitempty"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ========== Mapper Output Types ==========

// NotificationListItem is a notification as shown in the UI inbox and sent over the websocket.
type NotificationListItem struct {
	ID          string                 `json:"id"`
	RecipientID uint                   `json:"recipient_id"`
	RuleKind    string                 `json:"rule_kind"`
	SubjectID   string                 `json:"subject_id"`
	Severity    string                 `json:"severity"`
	Summary     string                 `json:"summary"`
	Facts       map[string]interface{} `json:"facts,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	IsDismissed bool                   `json:"is_dismissed"`
	DismissedAt *time.Time             `json:"dismissed_at,omitempty"`
}
