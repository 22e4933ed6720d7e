package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/platform/textutil"
	"github.com/poslink/api/internal/repositories"
)

var (
	// ErrContactInvalidInput indicates the caller supplied invalid contact parameters.
	ErrContactInvalidInput = errors.New("contact: invalid input")
	// ErrContactNotFound indicates no contact matches the lookup.
	ErrContactNotFound = errors.New("contact: not found")
	// ErrContactConflict indicates a concurrent insert claimed the same contact.
	ErrContactConflict = errors.New("contact: conflict")
)

// ContactServiceDeps bundles collaborators required to construct a contact service.
type ContactServiceDeps struct {
	Contacts repositories.ContactRepository
	Counters CounterService

	// CodePrefix and CounterName drive sequential contact codes (CO0001 style).
	CodePrefix  string
	CounterName string
	// CustomerGroupID is stamped onto contacts created by the order sync.
	CustomerGroupID string

	IDGenerator func() string
	Clock       func() time.Time
}

type contactService struct {
	contacts repositories.ContactRepository
	counters CounterService

	codePrefix      string
	counterName     string
	customerGroupID string

	idGenerator func() string
	clock       func() time.Time
}

var _ ContactService = (*contactService)(nil)

// NewContactService constructs the contact resolver used by the order sync
// flow and the direct contact-creation API.
func NewContactService(deps ContactServiceDeps) (ContactService, error) {
	if deps.Contacts == nil {
		return nil, errors.New("contact service: contact repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("contact service: counter service is required")
	}

	codePrefix := strings.TrimSpace(deps.CodePrefix)
	if codePrefix == "" {
		codePrefix = "CO"
	}
	counterName := strings.TrimSpace(deps.CounterName)
	if counterName == "" {
		counterName = "contacts"
	}

	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "con_" + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &contactService{
		contacts:        deps.Contacts,
		counters:        deps.Counters,
		codePrefix:      codePrefix,
		counterName:     counterName,
		customerGroupID: strings.TrimSpace(deps.CustomerGroupID),
		idGenerator:     idGenerator,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *contactService) ResolveForOrder(ctx context.Context, cmd ResolveOrderContactCommand) (Contact, error) {
	resolution, err := s.resolve(ctx, createContactInput{
		BusinessID: cmd.BusinessID,
		FirstName:  cmd.Billing.FirstName,
		LastName:   cmd.Billing.LastName,
		Email:      cmd.Billing.Email,
		Mobile:     cmd.Billing.Phone,
		Address1:   cmd.Billing.Address1,
		Address2:   cmd.Billing.Address2,
		City:       cmd.Billing.City,
		State:      cmd.Billing.State,
		Country:    cmd.Billing.Country,
		ZipCode:    cmd.Billing.Postcode,
		CreatedBy:  "order_sync",
	})
	if err != nil {
		return Contact{}, err
	}
	return resolution.Contact, nil
}

func (s *contactService) CreateContact(ctx context.Context, cmd CreateContactCommand) (ContactResolution, error) {
	return s.resolve(ctx, createContactInput(cmd))
}

func (s *contactService) FindByMobile(ctx context.Context, businessID, mobile string) (Contact, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return Contact{}, fmt.Errorf("%w: business id is required", ErrContactInvalidInput)
	}
	normalized := textutil.NormalizePhone(mobile)
	if normalized == "" {
		return Contact{}, fmt.Errorf("%w: mobile number is required", ErrContactInvalidInput)
	}

	contact, err := s.contacts.FindByMobile(ctx, businessID, normalized)
	if err != nil {
		return Contact{}, translateContactError(err)
	}
	return contact, nil
}

type createContactInput struct {
	BusinessID string
	FirstName  string
	LastName   string
	Email      string
	Mobile     string
	Address1   string
	Address2   string
	City       string
	State      string
	Country    string
	ZipCode    string
	CreatedBy  string
}

// resolve looks the contact up by mobile and creates it on a miss. At most
// one insert happens per call; existing contacts are never updated.
func (s *contactService) resolve(ctx context.Context, input createContactInput) (ContactResolution, error) {
	businessID := strings.TrimSpace(input.BusinessID)
	if businessID == "" {
		return ContactResolution{}, fmt.Errorf("%w: business id is required", ErrContactInvalidInput)
	}
	mobile := textutil.NormalizePhone(input.Mobile)
	if mobile == "" {
		return ContactResolution{}, fmt.Errorf("%w: mobile number is required", ErrContactInvalidInput)
	}

	existing, err := s.contacts.FindByMobile(ctx, businessID, mobile)
	if err == nil {
		return ContactResolution{Contact: existing}, nil
	}
	var repoErr *repositories.ContactError
	if !errors.As(err, &repoErr) || repoErr.Code != repositories.ContactErrorNotFound {
		return ContactResolution{}, translateContactError(err)
	}

	code, err := s.counters.Next(ctx, businessID, s.counterName, CounterGenerationOptions{
		Step:      1,
		Prefix:    s.codePrefix,
		PadLength: 4,
	})
	if err != nil {
		return ContactResolution{}, fmt.Errorf("allocate contact code: %w", err)
	}

	firstName := textutil.NormalizeName(input.FirstName)
	lastName := textutil.NormalizeName(input.LastName)
	email := strings.TrimSpace(input.Email)
	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		// Nameless storefront guests fall back to their email address.
		firstName = email
		displayName = email
	}

	now := s.clock()
	contact := domain.Contact{
		ID:              s.idGenerator(),
		BusinessID:      businessID,
		Type:            domain.ContactTypeCustomer,
		ContactCode:     code.Formatted,
		FirstName:       firstName,
		LastName:        lastName,
		Name:            displayName,
		Email:           email,
		Mobile:          mobile,
		AddressLine1:    strings.TrimSpace(input.Address1),
		AddressLine2:    strings.TrimSpace(input.Address2),
		City:            strings.TrimSpace(input.City),
		State:           strings.TrimSpace(input.State),
		Country:         strings.TrimSpace(input.Country),
		ZipCode:         strings.TrimSpace(input.ZipCode),
		CustomerGroupID: s.customerGroupID,
		CreatedBy:       strings.TrimSpace(input.CreatedBy),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.contacts.Insert(ctx, contact); err != nil {
		return ContactResolution{}, translateContactError(err)
	}
	return ContactResolution{Contact: contact, Created: true}, nil
}

func translateContactError(err error) error {
	var contactErr *repositories.ContactError
	if errors.As(err, &contactErr) {
		switch contactErr.Code {
		case repositories.ContactErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrContactInvalidInput, contactErr.Message)
		case repositories.ContactErrorNotFound:
			return fmt.Errorf("%w: %s", ErrContactNotFound, contactErr.Message)
		case repositories.ContactErrorDuplicate:
			return fmt.Errorf("%w: %s", ErrContactConflict, contactErr.Message)
		}
	}
	return err
}
