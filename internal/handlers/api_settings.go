package handlers

import (
	"log"
	"net/http"

	"github.com/stockalert/stockalert/internal/api"
	"github.com/stockalert/stockalert/internal/database"
)

// handleAlertSettings handles GET /api/settings/alerting and PUT /api/settings/alerting
func (h *APIHandler) handleAlertSettings(w http.ResponseWriter, r *http.Request) {
	db := h.store.DB().WithContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		settings, err := database.GetOrCreateAlertSettings(db)
		if err != nil {
			log.Printf("API: Failed to load alert settings: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to load alert settings")
			return
		}
		api.RespondJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var req api.UpdateAlertSettingsRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errs := api.Validate(req); errs != nil {
			api.RespondValidationError(w, errs)
			return
		}

		settings, err := database.GetOrCreateAlertSettings(db)
		if err != nil {
			log.Printf("API: Failed to load alert settings: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to load alert settings")
			return
		}

		req.Apply(settings)
		if settings.RecipientPolicy == database.RecipientPolicyDesignated && settings.DesignatedRecipientID == nil {
			api.RespondValidationError(w, map[string]string{
				"designated_recipient_id": "is required when recipient_policy is designated",
			})
			return
		}

		if err := database.UpdateAlertSettings(db, settings); err != nil {
			log.Printf("API: Failed to update alert settings: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to update settings")
			return
		}

		log.Printf("Alert settings updated: enabled=%t interval=%dm cooldown=%dh policy=%s",
			settings.Enabled, settings.HealthCheckIntervalMinutes, settings.DedupCooldownHours, settings.RecipientPolicy)
		api.RespondJSON(w, http.StatusOK, settings)

	default:
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSlackSettings handles GET /api/settings/slack and PUT /api/settings/slack
func (h *APIHandler) handleSlackSettings(w http.ResponseWriter, r *http.Request) {
	db := h.store.DB().WithContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		var settings database.SlackSettings
		if err := db.First(&settings).Error; err != nil {
			api.RespondError(w, http.StatusNotFound, "Settings not found")
			return
		}
		api.RespondJSON(w, http.StatusOK, api.SlackSettingsToResponse(settings))

	case http.MethodPut:
		var req api.UpdateSlackSettingsRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errs := api.Validate(req); errs != nil {
			api.RespondValidationError(w, errs)
			return
		}

		var settings database.SlackSettings
		if err := db.First(&settings).Error; err != nil {
			api.RespondError(w, http.StatusNotFound, "Settings not found")
			return
		}

		updates := make(map[string]interface{})
		if req.BotToken != nil {
			updates["bot_token"] = *req.BotToken
		}
		if req.AlertsChannel != nil {
			updates["alerts_channel"] = *req.AlertsChannel
		}
		if req.Enabled != nil {
			updates["enabled"] = *req.Enabled
		}

		if len(updates) > 0 {
			if err := db.Model(&settings).Updates(updates).Error; err != nil {
				api.RespondError(w, http.StatusInternalServerError, "Failed to update settings")
				return
			}
		}

		if h.slackManager != nil {
			h.slackManager.TriggerReload()
			log.Printf("Slack settings updated, triggering hot-reload")
		}

		db.First(&settings)
		api.RespondJSON(w, http.StatusOK, api.SlackSettingsToResponse(settings))

	default:
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
