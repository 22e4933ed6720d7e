package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// ContactType distinguishes customers from suppliers within a business.
type ContactType string

const (
	// ContactTypeCustomer marks contacts that buy from the business.
	ContactTypeCustomer ContactType = "customer"
	// ContactTypeSupplier marks contacts the business purchases from.
	ContactTypeSupplier ContactType = "supplier"
)

// Contact is a business-scoped customer or supplier record. Customers created
// by the storefront sync are keyed by mobile number within their business.
type Contact struct {
	ID              string
	BusinessID      string
	Type            ContactType
	ContactCode     string
	FirstName       string
	LastName        string
	Name            string
	Email           string
	Mobile          string
	AddressLine1    string
	AddressLine2    string
	City            string
	State           string
	Country         string
	ZipCode         string
	CustomerGroupID string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Product is the catalog entry sale lines resolve against.
type Product struct {
	ID          string
	BusinessID  string
	Name        string
	SKU         string
	EnableStock bool
	Variations  []Variation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variation is a sellable flavour of a product; stock is tracked per
// variation and location.
type Variation struct {
	ID           string
	ProductID    string
	Name         string
	SubSKU       string
	SellPrice    int64
	SellPriceInc int64
}

// SaleStatus enumerates lifecycle states for sale transactions.
type SaleStatus string

const (
	// SaleStatusDraft indicates the sale awaits confirmation (quotation-like).
	SaleStatusDraft SaleStatus = "draft"
	// SaleStatusFinal indicates the sale is finalized and stock has moved.
	SaleStatusFinal SaleStatus = "final"
)

// PaymentStatus enumerates settlement states for sales.
type PaymentStatus string

const (
	// PaymentStatusDue indicates the sale has outstanding balance.
	PaymentStatusDue PaymentStatus = "due"
	// PaymentStatusPaid indicates the sale is fully settled.
	PaymentStatusPaid PaymentStatus = "paid"
)

// ShippingStatus tracks fulfilment progress for a sale.
type ShippingStatus string

const (
	// ShippingStatusOrdered indicates shipment has been requested.
	ShippingStatusOrdered ShippingStatus = "ordered"
	// ShippingStatusShipped indicates goods have left the business.
	ShippingStatusShipped ShippingStatus = "shipped"
	// ShippingStatusDelivered indicates goods reached the customer.
	ShippingStatusDelivered ShippingStatus = "delivered"
)

// SaleSource tags where a sale originated.
const (
	// SaleSourceStorefront marks sales synced from the external store.
	SaleSourceStorefront = "storefront_order"
	// SaleSourcePOS marks sales rung up at the counter.
	SaleSourcePOS = "pos"
)

// Sale is a business+location scoped sale transaction. Monetary amounts are
// minor currency units. Storefront-synced sales carry the external order
// number as InvoiceNo and are keyed by it for idempotent re-delivery.
type Sale struct {
	ID              string
	BusinessID      string
	LocationID      string
	ContactID       string
	Status          SaleStatus
	PaymentStatus   PaymentStatus
	ShippingStatus  ShippingStatus
	IsQuotation     bool
	Source          string
	InvoiceNo       string
	DiscountType    string
	DiscountAmount  int64
	ShippingCharges int64
	ShippingDetails string
	ShippingAddress string
	FinalTotal      int64
	SaleNote        string
	StaffNote       string
	OrderAddresses  string
	CustomerGroupID string
	TransactionDate time.Time
	CreatedBy       string
	Lines           []SaleLine
	Payments        []PaymentLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SaleLine is one matched order line on a sale. ExternalLineID correlates the
// line with the storefront order item for idempotent re-sync.
type SaleLine struct {
	ID              string
	ProductID       string
	VariationID     string
	Quantity        int
	UnitPrice       int64
	UnitPriceIncTax int64
	ItemTax         int64
	EnableStock     bool
	ExternalLineID  string
}

// PaymentLine records one payment captured against a sale. Re-synced orders
// overwrite the existing line instead of appending a duplicate.
type PaymentLine struct {
	ID     string
	Amount int64
	Method string
	Note   string
	PaidOn time.Time
}

// SaleSummary is the projection returned by contact order-history lookups.
type SaleSummary struct {
	ID              string
	InvoiceNo       string
	TransactionDate time.Time
	FinalTotal      int64
	PaymentStatus   PaymentStatus
	Status          SaleStatus
}

// StockLevel tracks on-hand quantity for a variation at a location.
type StockLevel struct {
	VariationID string
	ProductID   string
	LocationID  string
	OnHand      int
	UpdatedAt   time.Time
}

// PurchaseLot is a received purchase line with quantity still available for
// sale allocation. Sales drain lots oldest-first.
type PurchaseLot struct {
	ID          string
	BusinessID  string
	LocationID  string
	ProductID   string
	VariationID string
	Quantity    int
	Remaining   int
	ReceivedAt  time.Time
}

// LotAllocation links a sale line with the purchase lot(s) that costed it.
type LotAllocation struct {
	SaleLineID string
	LotID      string
	Quantity   int
}

// OrderPayload is the inbound storefront order. Consumed once, never stored
// verbatim. Decimal amounts arrive as strings and are parsed to minor units.
type OrderPayload struct {
	ID                 int64            `json:"id"`
	Number             string           `json:"number"`
	Status             string           `json:"status"`
	DiscountTotal      string           `json:"discount_total"`
	ShippingTotal      string           `json:"shipping_total"`
	Total              string           `json:"total"`
	PaymentMethod      string           `json:"payment_method"`
	PaymentMethodTitle string           `json:"payment_method_title"`
	DateCreated        time.Time        `json:"date_created"`
	DatePaid           *time.Time       `json:"date_paid"`
	Billing            OrderAddress     `json:"billing"`
	Shipping           OrderAddress     `json:"shipping"`
	LineItems          []OrderLineItem  `json:"line_items"`
	ShippingLines      []OrderShipLine  `json:"shipping_lines"`
	Metadata           []OrderMetaDatum `json:"meta_data"`
}

// OrderAddress holds billing or shipping details of an inbound order.
type OrderAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// OrderLineItem is a single line of an inbound order.
type OrderLineItem struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	SKU      string           `json:"sku"`
	Quantity int              `json:"quantity"`
	Total    string           `json:"total"`
	TotalTax string           `json:"total_tax"`
	Metadata []OrderMetaDatum `json:"meta_data"`
}

// OrderShipLine is a shipping method entry of an inbound order.
type OrderShipLine struct {
	MethodTitle string `json:"method_title"`
	Total       string `json:"total"`
}

// OrderMetaDatum is an arbitrary key/value attached by the storefront.
type OrderMetaDatum struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// User is a back-office login. Admin roles are granted through Roles, never
// through shared secret checks in application code.
type User struct {
	ID           string
	BusinessID   string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	Surname      string
	PasswordHash string
	Roles        []string
	AllowLogin   bool
	Status       string
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Business scopes every record in the system.
type Business struct {
	ID                string
	Name              string
	OwnerID           string
	AccountingMethod  string
	DefaultLocationID string
	CreatedAt         time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
