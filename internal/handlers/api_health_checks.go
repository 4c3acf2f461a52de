package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/stockalert/stockalert/internal/api"
	"github.com/stockalert/stockalert/internal/database"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// handleRunHealthCheck handles POST /api/health-checks/{kind}/run.
// The request goes through the scheduler, so a run within the interval is refused with ran=false.
func (h *APIHandler) handleRunHealthCheck(w http.ResponseWriter, r *http.Request) {
	kind := database.HealthCheckKind(r.PathValue("kind"))
	if !kind.IsValid() {
		api.RespondError(w, http.StatusBadRequest, "Unknown health check kind: "+string(kind))
		return
	}
	if h.healthChecks == nil {
		api.RespondError(w, http.StatusServiceUnavailable, "Health checks are not available")
		return
	}

	settings, err := database.GetOrCreateAlertSettings(h.store.DB().WithContext(r.Context()))
	if err != nil {
		log.Printf("API: Failed to load alert settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load alert settings")
		return
	}

	// A client disconnect must not abort a pass that already claimed its run.
	ran := h.healthChecks.MaybeRunHealthCheck(context.WithoutCancel(r.Context()), kind, settings.HealthCheckInterval())

	api.RespondJSON(w, http.StatusOK, api.RunHealthCheckResponse{Kind: kind, Ran: ran})
}

// handleListHealthCheckRuns handles GET /api/health-checks/runs
func (h *APIHandler) handleListHealthCheckRuns(w http.ResponseWriter, r *http.Request) {
	kind := database.HealthCheckKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.IsValid() {
		api.RespondError(w, http.StatusBadRequest, "Unknown health check kind: "+string(kind))
		return
	}

	limit, err := api.QueryLimit(r, "limit", defaultRunsLimit, maxRunsLimit)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.store.ListHealthCheckRuns(r.Context(), kind, limit)
	if err != nil {
		log.Printf("API: Failed to list health check runs: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list health check runs")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.HealthCheckRunsToResponses(runs))
}
