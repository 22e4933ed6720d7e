package services

import (
	"context"
	"time"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	SortOrder     = domain.SortOrder
	Contact       = domain.Contact
	ContactType   = domain.ContactType
	Product       = domain.Product
	Variation     = domain.Variation
	Sale          = domain.Sale
	SaleLine      = domain.SaleLine
	PaymentLine   = domain.PaymentLine
	SaleSummary   = domain.SaleSummary
	SaleStatus    = domain.SaleStatus
	PaymentStatus = domain.PaymentStatus
	StockLevel    = domain.StockLevel
	PurchaseLot   = domain.PurchaseLot
	LotAllocation = domain.LotAllocation
	OrderPayload  = domain.OrderPayload
	OrderAddress  = domain.OrderAddress
	OrderLineItem = domain.OrderLineItem
	User          = domain.User
	HealthReport  = repositories.HealthReport
	HealthCheck   = repositories.HealthCheck
)

// ContactService resolves and creates business-scoped customer contacts.
// Resolution is keyed on the billing mobile number; unseen numbers produce
// exactly one new contact carrying a sequential business-unique contact code.
type ContactService interface {
	ResolveForOrder(ctx context.Context, cmd ResolveOrderContactCommand) (Contact, error)
	CreateContact(ctx context.Context, cmd CreateContactCommand) (ContactResolution, error)
	FindByMobile(ctx context.Context, businessID, mobile string) (Contact, error)
}

// SaleService orchestrates storefront order reconciliation and sale lookups.
type SaleService interface {
	// SyncOrder maps one pushed storefront order into a sale transaction:
	// contact resolution, line mapping, assembly, and atomic persistence with
	// stock movement when the order status finalizes the sale. Re-delivery of
	// the same order number updates the existing sale in place.
	SyncOrder(ctx context.Context, cmd SyncOrderCommand) (SyncOrderResult, error)
	OrdersByPhone(ctx context.Context, query ContactOrdersQuery) (ContactOrderHistory, error)
	FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (Sale, error)
}

// UserService manages back-office logins, token issuance, and the persisted
// administrator roster.
type UserService interface {
	Login(ctx context.Context, cmd LoginCommand) (LoginResult, error)
	InspectToken(ctx context.Context, token string) (TokenDiagnostics, error)
	CreateAdminUser(ctx context.Context, cmd CreateAdminUserCommand) (User, error)
	ListAdminUsers(ctx context.Context) ([]User, error)
}

// CounterService manages named counter sequences with formatting options.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
}

// SystemService aggregates utility surfaces such as readiness health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// EventPublisher accepts domain event notifications for downstream processing.
// Implementations return the broker-assigned message ID, or an empty ID when
// the event was intentionally dropped (no topic configured).
type EventPublisher interface {
	PublishSaleEvent(ctx context.Context, message SaleEventMessage) (string, error)
	PublishStockEvent(ctx context.Context, message StockEventMessage) (string, error)
}

// Domain event names carried in the message envelope and broker attributes.
const (
	EventSaleCreated      = "sale.created"
	EventSaleReplayed     = "sale.replayed"
	EventStockDecremented = "stock.decremented"
)

// SaleEventMessage is the payload published when a sale is persisted.
type SaleEventMessage struct {
	Event      string    `json:"event"`
	SaleID     string    `json:"sale_id"`
	BusinessID string    `json:"business_id"`
	InvoiceNo  string    `json:"invoice_no"`
	FinalTotal int64     `json:"final_total"`
	Replayed   bool      `json:"replayed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StockEventMessage is the payload published for each stock decrement caused
// by a finalized sale.
type StockEventMessage struct {
	Event       string    `json:"event"`
	BusinessID  string    `json:"business_id"`
	ProductID   string    `json:"product_id"`
	VariationID string    `json:"variation_id"`
	LocationID  string    `json:"location_id"`
	Quantity    int       `json:"quantity"`
	OnHand      int       `json:"on_hand"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Command and DTO definitions ------------------------------------------------

// ResolveOrderContactCommand carries the billing block of a pushed order.
type ResolveOrderContactCommand struct {
	BusinessID string
	Billing    OrderAddress
}

// CreateContactCommand is the direct contact-creation API surface.
type CreateContactCommand struct {
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

// ContactResolution reports the resolved contact and whether it was created
// by this call.
type ContactResolution struct {
	Contact Contact
	Created bool
}

// SyncOrderCommand carries one pushed storefront order for reconciliation.
type SyncOrderCommand struct {
	BusinessID string
	Order      OrderPayload
}

// SyncOrderResult reports the persisted sale and the stock effects of the sync.
type SyncOrderResult struct {
	Sale        Sale
	Contact     Contact
	Replayed    bool
	Finalized   bool
	Allocations []LotAllocation
}

// ContactOrdersQuery looks up a customer and their sale history by phone.
type ContactOrdersQuery struct {
	BusinessID string
	Phone      string
	Pagination
}

// ContactOrderHistory is the phone-lookup projection: the matched customer
// plus their sales, date-descending.
type ContactOrderHistory struct {
	Contact Contact
	Orders  domain.CursorPage[SaleSummary]
}

// LoginCommand carries first-party credentials.
type LoginCommand struct {
	Username string
	Password string
}

// LoginResult carries the issued bearer token and the authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// TokenDiagnostics is the integrator-facing breakdown of a bearer token.
type TokenDiagnostics struct {
	Valid       bool
	Subject     string
	Username    string
	BusinessID  string
	Roles       []string
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Expired     bool
	Reason      string
	Remediation string
}

// CreateAdminUserCommand provisions a back-office administrator.
type CreateAdminUserCommand struct {
	BusinessID string
	Username   string
	Password   string
	Email      string
	FirstName  string
	LastName   string
	CreatedBy  string
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	Prefix       string
	Suffix       string
	PadLength    int
	MaxValue     *int64
	InitialValue *int64
	Formatter    func(now time.Time, value int64) string
}

// CounterValue is one allocated counter value with its formatted rendering.
type CounterValue struct {
	Value     int64
	Formatted string
}
