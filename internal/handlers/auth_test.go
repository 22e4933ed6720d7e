package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/services"
)

type stubUserService struct {
	loginFn   func(context.Context, services.LoginCommand) (services.LoginResult, error)
	inspectFn func(context.Context, string) (services.TokenDiagnostics, error)
	createFn  func(context.Context, services.CreateAdminUserCommand) (services.User, error)
	listFn    func(context.Context) ([]services.User, error)
}

func (s *stubUserService) Login(ctx context.Context, cmd services.LoginCommand) (services.LoginResult, error) {
	if s.loginFn != nil {
		return s.loginFn(ctx, cmd)
	}
	return services.LoginResult{}, errors.New("not implemented")
}

func (s *stubUserService) InspectToken(ctx context.Context, token string) (services.TokenDiagnostics, error) {
	if s.inspectFn != nil {
		return s.inspectFn(ctx, token)
	}
	return services.TokenDiagnostics{}, errors.New("not implemented")
}

func (s *stubUserService) CreateAdminUser(ctx context.Context, cmd services.CreateAdminUserCommand) (services.User, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) ListAdminUsers(ctx context.Context) ([]services.User, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func newAuthRouter(users services.UserService) chi.Router {
	handler := NewAuthHandlers(users)
	router := chi.NewRouter()
	router.Route("/auth", handler.Routes)
	return router
}

func TestAuthLoginSuccess(t *testing.T) {
	expires := time.Date(2024, time.March, 1, 13, 0, 0, 0, time.UTC)
	var captured services.LoginCommand
	service := &stubUserService{
		loginFn: func(_ context.Context, cmd services.LoginCommand) (services.LoginResult, error) {
			captured = cmd
			return services.LoginResult{
				Token:     "signed-token",
				ExpiresAt: expires,
				User: domain.User{
					ID:         "usr_1",
					BusinessID: "biz_1",
					Username:   "owner",
					Roles:      []string{"admin", "user"},
					Status:     "active",
				},
			}, nil
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"username":"owner","password":"open sesame"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Username != "owner" || captured.Password != "open sesame" {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Token != "signed-token" {
		t.Fatalf("unexpected token: %q", resp.Token)
	}
	if resp.User.ID != "usr_1" || len(resp.User.Roles) != 2 {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	if resp.ExpiresAt == "" {
		t.Fatalf("expected expiry timestamp")
	}
}

func TestAuthLoginInvalidCredentials(t *testing.T) {
	service := &stubUserService{
		loginFn: func(context.Context, services.LoginCommand) (services.LoginResult, error) {
			return services.LoginResult{}, services.ErrInvalidCredentials
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"username":"owner","password":"nope"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", body))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Error != "invalid_credentials" {
		t.Fatalf("unexpected error code: %q", resp.Error)
	}
}

func TestAuthLoginDisabledAccount(t *testing.T) {
	service := &stubUserService{
		loginFn: func(context.Context, services.LoginCommand) (services.LoginResult, error) {
			return services.LoginResult{}, services.ErrLoginDisabled
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"username":"owner","password":"open sesame"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", body))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAuthLoginMalformedBody(t *testing.T) {
	router := newAuthRouter(&stubUserService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAuthInspectTokenValid(t *testing.T) {
	issued := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	service := &stubUserService{
		inspectFn: func(_ context.Context, token string) (services.TokenDiagnostics, error) {
			if token != "abc.def.ghi" {
				t.Fatalf("unexpected token: %q", token)
			}
			return services.TokenDiagnostics{
				Valid:      true,
				Subject:    "usr_1",
				Username:   "owner",
				BusinessID: "biz_1",
				Roles:      []string{"admin"},
				Issuer:     "poslink-api",
				IssuedAt:   issued,
				ExpiresAt:  issued.Add(time.Hour),
			}, nil
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"token":"abc.def.ghi"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/token:inspect", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp tokenDiagnosticsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !resp.Valid || resp.Subject != "usr_1" || resp.Issuer != "poslink-api" {
		t.Fatalf("unexpected diagnostics: %+v", resp)
	}
}

func TestAuthInspectTokenExpired(t *testing.T) {
	service := &stubUserService{
		inspectFn: func(context.Context, string) (services.TokenDiagnostics, error) {
			return services.TokenDiagnostics{
				Valid:       false,
				Expired:     true,
				Reason:      "token is expired",
				Remediation: "request a new token via POST /api/v1/auth/login",
			}, nil
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"token":"stale"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/token:inspect", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp tokenDiagnosticsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Valid || !resp.Expired {
		t.Fatalf("expected expired diagnostics, got %+v", resp)
	}
	if resp.Remediation == "" {
		t.Fatalf("expected remediation hint")
	}
}

func TestAuthInspectTokenMissing(t *testing.T) {
	service := &stubUserService{
		inspectFn: func(context.Context, string) (services.TokenDiagnostics, error) {
			return services.TokenDiagnostics{}, services.ErrUserInvalidInput
		},
	}
	router := newAuthRouter(service)

	body := bytes.NewBufferString(`{"token":""}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/token:inspect", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
