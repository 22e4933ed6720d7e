package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/platform/auth"
	"github.com/poslink/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid user parameters.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates the username is already taken.
	ErrUserConflict = errors.New("user: conflict")
	// ErrInvalidCredentials indicates the username or password did not match.
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	// ErrLoginDisabled indicates the account exists but may not sign in.
	ErrLoginDisabled = errors.New("user: login disabled")
)

const minPasswordLength = 8

// TokenIssuer abstracts the token manager for issuing and verifying access tokens.
type TokenIssuer interface {
	Issue(userID, username, businessID string, roles []string) (string, time.Time, error)
	Verify(token string) (*auth.Claims, error)
}

// UserServiceDeps bundles collaborators required to construct a user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Tokens TokenIssuer

	IDGenerator func() string
	Clock       func() time.Time
	// HashCost overrides the bcrypt cost, primarily for tests.
	HashCost int
}

type userService struct {
	users  repositories.UserRepository
	tokens TokenIssuer

	idGenerator func() string
	clock       func() time.Time
	hashCost    int
}

var _ UserService = (*userService)(nil)

// NewUserService constructs the back-office login service.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "usr_" + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	hashCost := deps.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}

	return &userService{
		users:       deps.Users,
		tokens:      deps.Tokens,
		idGenerator: idGenerator,
		clock: func() time.Time {
			return clock().UTC()
		},
		hashCost: hashCost,
	}, nil
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(cmd.Username))
	if username == "" || cmd.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: username and password are required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// Same failure as a wrong password so usernames cannot be probed.
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.AllowLogin {
		return LoginResult{}, ErrLoginDisabled
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)) != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username, user.BusinessID, user.Roles)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	user.PasswordHash = ""
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// InspectToken decodes a bearer token and reports structured diagnostics for
// integrators. Invalid and expired tokens still yield whatever claims can be
// read without trusting the signature.
func (s *userService) InspectToken(_ context.Context, token string) (TokenDiagnostics, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenDiagnostics{}, fmt.Errorf("%w: token is required", ErrUserInvalidInput)
	}

	claims, verifyErr := s.tokens.Verify(token)
	diag := TokenDiagnostics{Valid: verifyErr == nil}

	if claims == nil {
		claims = &auth.Claims{}
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return TokenDiagnostics{
				Reason:      "token is not a decodable JWT",
				Remediation: "request a new token via POST /api/v1/auth/login",
			}, nil
		}
	}

	diag.Subject = claims.Subject
	diag.Username = claims.Username
	diag.BusinessID = claims.BusinessID
	diag.Roles = append([]string(nil), claims.Roles...)
	diag.Issuer = claims.Issuer
	if claims.IssuedAt != nil {
		diag.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		diag.ExpiresAt = claims.ExpiresAt.Time.UTC()
		diag.Expired = !diag.ExpiresAt.After(s.clock())
	}

	switch {
	case verifyErr == nil:
	case errors.Is(verifyErr, auth.ErrTokenExpired):
		diag.Expired = true
		diag.Reason = "token has expired"
		diag.Remediation = "request a new token via POST /api/v1/auth/login"
	default:
		diag.Reason = "signature or claims rejected: " + verifyErr.Error()
		diag.Remediation = "confirm the token was issued by this service and is sent unmodified"
	}
	return diag, nil
}

func (s *userService) CreateAdminUser(ctx context.Context, cmd CreateAdminUserCommand) (User, error) {
	username := strings.ToLower(strings.TrimSpace(cmd.Username))
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrUserInvalidInput)
	}
	if strings.ContainsAny(username, " \t") {
		return User{}, fmt.Errorf("%w: username must not contain whitespace", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:           s.idGenerator(),
		BusinessID:   strings.TrimSpace(cmd.BusinessID),
		Username:     username,
		Email:        strings.TrimSpace(cmd.Email),
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		PasswordHash: string(hash),
		Roles:        []string{auth.RoleAdmin, auth.RoleUser},
		AllowLogin:   true,
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return User{}, fmt.Errorf("%w: username %s is taken", ErrUserConflict, username)
		}
		return User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *userService) ListAdminUsers(ctx context.Context) ([]User, error) {
	users, err := s.users.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
