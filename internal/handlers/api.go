package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/stockalert/stockalert/internal/database"
	slackutil "github.com/stockalert/stockalert/internal/slack"
)

// HealthCheckTrigger runs a health check unless one of the same kind ran within interval
type HealthCheckTrigger interface {
	MaybeRunHealthCheck(ctx context.Context, kind database.HealthCheckKind, interval time.Duration) bool
}

// APIHandler handles API endpoints for the UI
type APIHandler struct {
	store        *database.Store
	healthChecks HealthCheckTrigger
	slackManager *slackutil.Manager
}

// NewAPIHandler creates a new API handler.
// healthChecks and slackManager may be nil.
func NewAPIHandler(store *database.Store, healthChecks HealthCheckTrigger, slackManager *slackutil.Manager) *APIHandler {
	return &APIHandler{
		store:        store,
		healthChecks: healthChecks,
		slackManager: slackManager,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Notifications
	mux.HandleFunc("GET /api/notifications", h.handleListNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", h.handleMarkNotificationRead)
	mux.HandleFunc("POST /api/notifications/{id}/dismiss", h.handleDismissNotification)
	mux.HandleFunc("DELETE /api/notifications/{id}", h.handleDeleteNotification)

	// Health checks
	mux.HandleFunc("POST /api/health-checks/{kind}/run", h.handleRunHealthCheck)
	mux.HandleFunc("GET /api/health-checks/runs", h.handleListHealthCheckRuns)

	// Settings
	mux.HandleFunc("/api/settings/alerting", h.handleAlertSettings)
	mux.HandleFunc("/api/settings/slack", h.handleSlackSettings)
}
