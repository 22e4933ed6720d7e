package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/poslink/api/internal/domain"
	pfirestore "github.com/poslink/api/internal/platform/firestore"
	"github.com/poslink/api/internal/repositories"
)

const contactsCollection = "contacts"

type contactDocument struct {
	BusinessID      string    `firestore:"businessId"`
	Type            string    `firestore:"type"`
	ContactCode     string    `firestore:"contactCode,omitempty"`
	FirstName       string    `firestore:"firstName,omitempty"`
	LastName        string    `firestore:"lastName,omitempty"`
	Name            string    `firestore:"name"`
	Email           string    `firestore:"email,omitempty"`
	Mobile          string    `firestore:"mobile,omitempty"`
	AddressLine1    string    `firestore:"addressLine1,omitempty"`
	AddressLine2    string    `firestore:"addressLine2,omitempty"`
	City            string    `firestore:"city,omitempty"`
	State           string    `firestore:"state,omitempty"`
	Country         string    `firestore:"country,omitempty"`
	ZipCode         string    `firestore:"zipCode,omitempty"`
	CustomerGroupID string    `firestore:"customerGroupId,omitempty"`
	CreatedBy       string    `firestore:"createdBy,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newContactDocument(contact domain.Contact, now time.Time) contactDocument {
	createdAt := contact.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return contactDocument{
		BusinessID:      strings.TrimSpace(contact.BusinessID),
		Type:            string(contact.Type),
		ContactCode:     strings.TrimSpace(contact.ContactCode),
		FirstName:       strings.TrimSpace(contact.FirstName),
		LastName:        strings.TrimSpace(contact.LastName),
		Name:            strings.TrimSpace(contact.Name),
		Email:           strings.TrimSpace(contact.Email),
		Mobile:          strings.TrimSpace(contact.Mobile),
		AddressLine1:    contact.AddressLine1,
		AddressLine2:    contact.AddressLine2,
		City:            contact.City,
		State:           contact.State,
		Country:         contact.Country,
		ZipCode:         contact.ZipCode,
		CustomerGroupID: contact.CustomerGroupID,
		CreatedBy:       contact.CreatedBy,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}
}

func (d contactDocument) toDomain(id string) domain.Contact {
	return domain.Contact{
		ID:              id,
		BusinessID:      d.BusinessID,
		Type:            domain.ContactType(d.Type),
		ContactCode:     d.ContactCode,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Name:            d.Name,
		Email:           d.Email,
		Mobile:          d.Mobile,
		AddressLine1:    d.AddressLine1,
		AddressLine2:    d.AddressLine2,
		City:            d.City,
		State:           d.State,
		Country:         d.Country,
		ZipCode:         d.ZipCode,
		CustomerGroupID: d.CustomerGroupID,
		CreatedBy:       d.CreatedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// ContactRepository persists business-scoped contacts in Firestore.
type ContactRepository struct {
	provider *pfirestore.Provider
	contacts *pfirestore.BaseRepository[contactDocument]
}

// NewContactRepository constructs a Firestore-backed contact repository.
func NewContactRepository(provider *pfirestore.Provider) (*ContactRepository, error) {
	if provider == nil {
		return nil, errors.New("contact repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[contactDocument](provider, contactsCollection, nil, nil)
	return &ContactRepository{provider: provider, contacts: base}, nil
}

// Insert creates the contact under its assigned ID.
func (r *ContactRepository) Insert(ctx context.Context, contact domain.Contact) error {
	if r == nil || r.contacts == nil {
		return errors.New("contact repository not initialised")
	}
	if strings.TrimSpace(contact.ID) == "" {
		return repositories.NewContactError(repositories.ContactErrorInvalidInput, "contact id is required", nil)
	}
	if strings.TrimSpace(contact.BusinessID) == "" {
		return repositories.NewContactError(repositories.ContactErrorInvalidInput, "business id is required", nil)
	}

	ref, err := r.contacts.DocumentRef(ctx, contact.ID)
	if err != nil {
		return err
	}
	doc := newContactDocument(contact, time.Now().UTC())
	if _, err := ref.Create(ctx, doc); err != nil {
		wrapped := pfirestore.WrapError("contacts.insert", err)
		var repoErr *pfirestore.Error
		if errors.As(wrapped, &repoErr) && repoErr.IsConflict() {
			return repositories.NewContactError(repositories.ContactErrorDuplicate, fmt.Sprintf("contact %s already exists", contact.ID), err)
		}
		return wrapped
	}
	return nil
}

// FindByID loads the contact by document ID.
func (r *ContactRepository) FindByID(ctx context.Context, contactID string) (domain.Contact, error) {
	if r == nil || r.contacts == nil {
		return domain.Contact{}, errors.New("contact repository not initialised")
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return domain.Contact{}, repositories.NewContactError(repositories.ContactErrorInvalidInput, "contact id is required", nil)
	}

	doc, err := r.contacts.Get(ctx, contactID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Contact{}, repositories.NewContactError(repositories.ContactErrorNotFound, fmt.Sprintf("contact %s not found", contactID), err)
		}
		return domain.Contact{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByMobile returns the first customer contact with the given mobile
// number inside the business. Supplier contacts never match.
func (r *ContactRepository) FindByMobile(ctx context.Context, businessID, mobile string) (domain.Contact, error) {
	if r == nil || r.contacts == nil {
		return domain.Contact{}, errors.New("contact repository not initialised")
	}
	businessID = strings.TrimSpace(businessID)
	mobile = strings.TrimSpace(mobile)
	if businessID == "" || mobile == "" {
		return domain.Contact{}, repositories.NewContactError(repositories.ContactErrorInvalidInput, "business id and mobile are required", nil)
	}

	docs, err := r.contacts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("businessId", "==", businessID).
			Where("mobile", "==", mobile).
			Where("type", "==", string(domain.ContactTypeCustomer)).
			OrderBy("createdAt", firestore.Asc).
			Limit(1)
	})
	if err != nil {
		return domain.Contact{}, err
	}
	if len(docs) == 0 {
		return domain.Contact{}, repositories.NewContactError(repositories.ContactErrorNotFound, fmt.Sprintf("no customer with mobile %s", mobile), nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}
