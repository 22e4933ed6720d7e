package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poslink/api/internal/platform/auth"
	"github.com/poslink/api/internal/platform/httpx"
	"github.com/poslink/api/internal/services"
)

// AdminUserHandlers manages the administrator roster. Every route requires an
// admin role claim on the bearer token.
type AdminUserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewAdminUserHandlers constructs a new AdminUserHandlers instance.
func NewAdminUserHandlers(authn *auth.Authenticator, users services.UserService) *AdminUserHandlers {
	return &AdminUserHandlers{
		authn: authn,
		users: users,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminUserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/users", h.listUsers)
	r.Post("/users", h.createUser)
}

type createAdminUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type adminUserListResponse struct {
	Users []userPayload `json:"users"`
}

func (h *AdminUserHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createAdminUserRequest
	if err := decodeJSONBody(r, &req, maxAuthBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	businessID, actor := requestScope(ctx, "")
	user, err := h.users.CreateAdminUser(ctx, services.CreateAdminUserCommand{
		BusinessID: businessID,
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		CreatedBy:  actor,
	})
	if err != nil {
		writeAdminUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": buildUserPayload(user)})
}

func (h *AdminUserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	users, err := h.users.ListAdminUsers(ctx)
	if err != nil {
		writeAdminUserError(ctx, w, err)
		return
	}

	payloads := make([]userPayload, 0, len(users))
	for _, user := range users {
		payloads = append(payloads, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, adminUserListResponse{Users: payloads})
}

func writeAdminUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimSpace(err.Error()), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserConflict):
		httpx.WriteError(ctx, w, httpx.NewError("user_conflict", "a user with this username already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}
