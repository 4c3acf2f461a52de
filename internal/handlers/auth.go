package handlers

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/stockalert/stockalert/internal/api"
	"github.com/stockalert/stockalert/internal/middleware"
)

// NotificationStreamPath is the websocket endpoint login hands its token to
const NotificationStreamPath = "/ws/notifications"

// AuthHandler issues operator tokens for the dashboard and the notification stream
type AuthHandler struct {
	jwtAuth *middleware.JWTAuthMiddleware
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(jwtAuth *middleware.JWTAuthMiddleware) *AuthHandler {
	return &AuthHandler{jwtAuth: jwtAuth}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginResponse carries an operator token. Browsers cannot set headers on a
// websocket handshake, so StreamPath already holds the token as a query parameter;
// clients append recipient_id and, on reconnect, since.
type LoginResponse struct {
	Token      string    `json:"token"`
	TokenType  string    `json:"token_type"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExpiresIn  int       `json:"expires_in"` // seconds
	StreamPath string    `json:"stream_path"`
}

// VerifyResponse describes the token presented to GET /auth/verify
type VerifyResponse struct {
	Valid     bool      `json:"valid"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SetupRoutes sets up authentication routes
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/verify", h.handleVerify)
}

// handleLogin handles POST /auth/login
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	if !h.jwtAuth.ValidateCredentials(req.Username, req.Password) {
		log.Printf("Auth: Failed login attempt for user '%s' from %s", req.Username, r.RemoteAddr)
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.Username)
	if err != nil {
		log.Printf("Auth: Failed to generate token for user '%s': %v", req.Username, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	log.Printf("Auth: Operator '%s' logged in from %s", req.Username, r.RemoteAddr)

	api.RespondJSON(w, http.StatusOK, LoginResponse{
		Token:      token,
		TokenType:  "Bearer",
		Username:   req.Username,
		Role:       middleware.RoleOperator,
		ExpiresAt:  expiresAt.UTC(),
		ExpiresIn:  int(h.jwtAuth.TokenTTL().Seconds()),
		StreamPath: streamPath(token),
	})
}

func streamPath(token string) string {
	return NotificationStreamPath + "?" + url.Values{middleware.QueryTokenParam: {token}}.Encode()
}

// handleVerify handles GET /auth/verify
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	resp := VerifyResponse{
		Valid:    true,
		Username: claims.Username,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	api.RespondJSON(w, http.StatusOK, resp)
}
