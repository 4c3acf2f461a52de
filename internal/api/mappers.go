package api

import "github.com/stockalert/stockalert/internal/database"

// NotificationToListItem converts a database Notification to its API representation.
// The dedup key is internal and is not exposed.
func NotificationToListItem(n database.Notification) NotificationListItem {
	return NotificationListItem{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		RuleKind:    n.RuleKind,
		SubjectID:   n.SubjectID,
		Severity:    n.Severity,
		Summary:     n.Summary,
		Facts:       n.Facts,
		CreatedAt:   n.CreatedAt,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		IsDismissed: n.IsDismissed,
		DismissedAt: n.DismissedAt,
	}
}

// NotificationsToListItems converts a slice of database Notifications to list items.
func NotificationsToListItems(notifications []database.Notification) []NotificationListItem {
	items := make([]NotificationListItem, len(notifications))
	for i, n := range notifications {
		items[i] = NotificationToListItem(n)
	}
	return items
}

// HealthCheckRunToResponse converts a recorded run, deriving its duration when finished.
func HealthCheckRunToResponse(run database.HealthCheckRun) HealthCheckRunResponse {
	resp := HealthCheckRunResponse{
		ID:                   run.ID,
		Kind:                 run.CheckKind,
		RanAt:                run.RanAt,
		FinishedAt:           run.FinishedAt,
		NotificationsCreated: run.NotificationsCreated,
		CandidatesEvaluated:  run.CandidatesEvaluated,
	}
	if run.FinishedAt != nil {
		ms := run.FinishedAt.Sub(run.RanAt).Milliseconds()
		resp.DurationMs = &ms
	}
	if run.ErrorMessage != nil {
		resp.Error = *run.ErrorMessage
	}
	return resp
}

// HealthCheckRunsToResponses converts a slice of runs.
func HealthCheckRunsToResponses(runs []database.HealthCheckRun) []HealthCheckRunResponse {
	items := make([]HealthCheckRunResponse, len(runs))
	for i, run := range runs {
		items[i] = HealthCheckRunToResponse(run)
	}
	return items
}

// SlackSettingsToResponse converts Slack settings, masking the bot token.
func SlackSettingsToResponse(s database.SlackSettings) SlackSettingsResponse {
	return SlackSettingsResponse{
		ID:            s.ID,
		BotToken:      MaskToken(s.BotToken),
		AlertsChannel: s.AlertsChannel,
		Enabled:       s.Enabled,
		IsConfigured:  s.IsConfigured(),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// MaskToken masks a token for display, showing only last 4 characters
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
