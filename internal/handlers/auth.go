package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poslink/api/internal/platform/httpx"
	"github.com/poslink/api/internal/services"
)

const maxAuthBodySize = 16 * 1024

// AuthHandlers exposes first-party login and token diagnostics endpoints.
type AuthHandlers struct {
	users services.UserService
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(users services.UserService) *AuthHandlers {
	return &AuthHandlers{users: users}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)
	r.Post("/token:inspect", h.inspectToken)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	User      userPayload `json:"user"`
}

type userPayload struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id,omitempty"`
	Username   string   `json:"username"`
	Email      string   `json:"email,omitempty"`
	FirstName  string   `json:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Roles      []string `json:"roles"`
	Status     string   `json:"status,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req loginRequest
	if err := decodeJSONBody(r, &req, maxAuthBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.users.Login(ctx, services.LoginCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: formatTimestamp(result.ExpiresAt),
		User:      buildUserPayload(result.User),
	})
}

type inspectTokenRequest struct {
	Token string `json:"token"`
}

type tokenDiagnosticsPayload struct {
	Valid       bool     `json:"valid"`
	Subject     string   `json:"subject,omitempty"`
	Username    string   `json:"username,omitempty"`
	BusinessID  string   `json:"business_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	IssuedAt    string   `json:"issued_at,omitempty"`
	ExpiresAt   string   `json:"expires_at,omitempty"`
	Expired     bool     `json:"expired"`
	Reason      string   `json:"reason,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

func (h *AuthHandlers) inspectToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req inspectTokenRequest
	if err := decodeJSONBody(r, &req, maxAuthBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	diag, err := h.users.InspectToken(ctx, req.Token)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, tokenDiagnosticsPayload{
		Valid:       diag.Valid,
		Subject:     diag.Subject,
		Username:    diag.Username,
		BusinessID:  diag.BusinessID,
		Roles:       diag.Roles,
		Issuer:      diag.Issuer,
		IssuedAt:    formatTimestamp(diag.IssuedAt),
		ExpiresAt:   formatTimestamp(diag.ExpiresAt),
		Expired:     diag.Expired,
		Reason:      diag.Reason,
		Remediation: diag.Remediation,
	})
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:         user.ID,
		BusinessID: user.BusinessID,
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Roles:      user.Roles,
		Status:     user.Status,
		CreatedAt:  formatTimestamp(user.CreatedAt),
	}
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimSpace(err.Error()), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "username or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrLoginDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("login_disabled", "this account is not allowed to sign in", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("auth_error", "failed to process authentication request", http.StatusInternalServerError))
	}
}
