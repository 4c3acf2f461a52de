package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// RequestIDHeader carries the request id set by the request-id middleware
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the error envelope of every endpoint. RequestID echoes
// the X-Request-ID response header so a failure can be matched to its access log line.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("API: Failed to encode JSON response: %v", err)
	}
}

func respondErrorEnvelope(w http.ResponseWriter, status int, resp ErrorResponse) {
	resp.RequestID = w.Header().Get(RequestIDHeader)
	RespondJSON(w, status, resp)
}

// RespondError writes an error envelope with a human-readable message.
func RespondError(w http.ResponseWriter, status int, message string) {
	respondErrorEnvelope(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode adds a machine-readable code, e.g. "not_dismissed" for a refused delete.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	respondErrorEnvelope(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	respondErrorEnvelope(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_error",
		Details: fieldErrors,
	})
}

// RespondNoContent writes a 204 after a successful delete.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
