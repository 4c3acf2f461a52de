package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/api"
	"github.com/stockalert/stockalert/internal/database"
)

// handleListNotifications handles GET /api/notifications
func (h *APIHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	pagination := api.ParsePagination(r)

	recipientID, err := api.QueryID(r, "recipient_id")
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := api.QueryTime(r, "since")
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	unread, err := api.QueryBool(r, "unread")
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := database.NotificationFilter{
		RecipientID: recipientID,
		Since:       since,
		UnreadOnly:  unread,
		Offset:      pagination.Offset(),
		Limit:       pagination.PerPage,
	}

	if v := r.URL.Query().Get("min_severity"); v != "" {
		minSeverity, ok := alerts.ParseSeverity(v)
		if !ok {
			api.RespondError(w, http.StatusBadRequest, "Invalid min_severity: expected LOW, MEDIUM, HIGH or CRITICAL")
			return
		}
		for _, sev := range alerts.SeveritiesAtLeast(minSeverity) {
			filter.Severities = append(filter.Severities, string(sev))
		}
	}

	notifications, total, err := h.store.ListNotifications(r.Context(), filter)
	if err != nil {
		log.Printf("API: Failed to list notifications: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
		Data:       api.NotificationsToListItems(notifications),
		Pagination: pagination.Meta(total),
	})
}

// handleMarkNotificationRead handles POST /api/notifications/{id}/read
func (h *APIHandler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkNotificationRead(r.Context(), r.PathValue("id"))
	if err != nil {
		respondNotificationError(w, "mark notification read", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.NotificationToListItem(*n))
}

// handleDismissNotification handles POST /api/notifications/{id}/dismiss
func (h *APIHandler) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DismissNotification(r.Context(), r.PathValue("id"))
	if err != nil {
		respondNotificationError(w, "dismiss notification", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.NotificationToListItem(*n))
}

// handleDeleteNotification handles DELETE /api/notifications/{id}
func (h *APIHandler) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteNotification(r.Context(), r.PathValue("id")); err != nil {
		respondNotificationError(w, "delete notification", err)
		return
	}
	api.RespondNoContent(w)
}

// respondNotificationError maps store errors to HTTP responses
func respondNotificationError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, database.ErrNotificationNotFound):
		api.RespondError(w, http.StatusNotFound, "Notification not found")
	case errors.Is(err, database.ErrNotificationNotDismissed):
		api.RespondErrorWithCode(w, http.StatusConflict, "not_dismissed", err.Error())
	default:
		log.Printf("API: Failed to %s: %v", action, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}
