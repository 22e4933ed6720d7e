package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/poslink/api/internal/domain"
	pfirestore "github.com/poslink/api/internal/platform/firestore"
)

const usersCollection = "users"

// RoleAdmin grants access to the back-office admin surfaces.
const RoleAdmin = "admin"

type userDocument struct {
	BusinessID   string    `firestore:"businessId,omitempty"`
	Username     string    `firestore:"username"`
	Email        string    `firestore:"email,omitempty"`
	FirstName    string    `firestore:"firstName,omitempty"`
	LastName     string    `firestore:"lastName,omitempty"`
	Surname      string    `firestore:"surname,omitempty"`
	PasswordHash string    `firestore:"passwordHash"`
	Roles        []string  `firestore:"roles"`
	AllowLogin   bool      `firestore:"allowLogin"`
	Status       string    `firestore:"status,omitempty"`
	Language     string    `firestore:"language,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newUserDocument(user domain.User, now time.Time) userDocument {
	createdAt := user.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	roles := append([]string(nil), user.Roles...)
	sort.Strings(roles)
	return userDocument{
		BusinessID:   strings.TrimSpace(user.BusinessID),
		Username:     strings.ToLower(strings.TrimSpace(user.Username)),
		Email:        strings.TrimSpace(user.Email),
		FirstName:    strings.TrimSpace(user.FirstName),
		LastName:     strings.TrimSpace(user.LastName),
		Surname:      strings.TrimSpace(user.Surname),
		PasswordHash: user.PasswordHash,
		Roles:        roles,
		AllowLogin:   user.AllowLogin,
		Status:       user.Status,
		Language:     user.Language,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:           id,
		BusinessID:   d.BusinessID,
		Username:     d.Username,
		Email:        d.Email,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Surname:      d.Surname,
		PasswordHash: d.PasswordHash,
		Roles:        append([]string(nil), d.Roles...),
		AllowLogin:   d.AllowLogin,
		Status:       d.Status,
		Language:     d.Language,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// UserRepository persists back-office logins in Firestore. Documents are
// keyed by lowercased username so lookup by username is a direct get.
type UserRepository struct {
	users *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{users: base}, nil
}

// Insert creates the login. A duplicate username surfaces as a conflict.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.users == nil {
		return errors.New("user repository not initialised")
	}
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(user.PasswordHash) == "" {
		return errors.New("password hash is required")
	}

	ref, err := r.users.DocumentRef(ctx, username)
	if err != nil {
		return err
	}
	doc := newUserDocument(user, time.Now().UTC())
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

// FindByUsername loads the login for username, case insensitive.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	if r == nil || r.users == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return domain.User{}, errors.New("username is required")
	}

	doc, err := r.users.Get(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListAdmins returns every login carrying the admin role, ordered by
// username.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	if r == nil || r.users == nil {
		return nil, errors.New("user repository not initialised")
	}

	docs, err := r.users.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("roles", "array-contains", RoleAdmin).
			OrderBy("username", firestore.Asc)
	})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}

	admins := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		admins = append(admins, doc.Data.toDomain(doc.ID))
	}
	return admins, nil
}
