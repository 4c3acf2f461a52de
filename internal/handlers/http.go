package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/stockalert/stockalert/internal/realtime"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HTTPHandler handles HTTP endpoints
type HTTPHandler struct {
	hub *realtime.Hub
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(hub *realtime.Hub) *HTTPHandler {
	return &HTTPHandler{
		hub: hub,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
}

// handleHealth returns a simple health check response with realtime counters
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"status":  "ok",
		"version": Version,
	}
	if h.hub != nil {
		response["realtime"] = h.hub.Stats()
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}
