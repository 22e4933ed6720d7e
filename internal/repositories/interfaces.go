package repositories

import (
	"context"
	"time"

	domain "github.com/poslink/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ContactRepository persists business-scoped contacts.
type ContactRepository interface {
	Insert(ctx context.Context, contact domain.Contact) error
	FindByID(ctx context.Context, contactID string) (domain.Contact, error)
	// FindByMobile returns the first customer contact matching the mobile
	// number within the business. Suppliers never match.
	FindByMobile(ctx context.Context, businessID, mobile string) (domain.Contact, error)
}

// ProductRepository resolves catalog products for line mapping.
type ProductRepository interface {
	// FindForBusiness loads the product with its variations, scoped to the
	// business. Returns a not-found repository error when absent.
	FindForBusiness(ctx context.Context, businessID, productID string) (domain.Product, error)
}

// SaleRepository persists sale transactions. PersistSale is the single
// transactional entry point used by the order sync flow: header, lines,
// payment, stock movement, and lot allocations commit or roll back together.
type SaleRepository interface {
	PersistSale(ctx context.Context, req PersistSaleRequest) (PersistSaleResult, error)
	FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (domain.Sale, error)
	ListByContact(ctx context.Context, query SaleHistoryQuery) (domain.CursorPage[domain.SaleSummary], error)
}

// PersistSaleRequest carries a fully assembled sale into the transactional
// persister. When Finalize is set the repository decrements stock for
// stock-tracked lines and allocates purchase lots FIFO inside the same
// transaction.
type PersistSaleRequest struct {
	Sale     domain.Sale
	Finalize bool
	// LineLabels maps variation IDs to operator-facing product labels used
	// in insufficient stock errors.
	LineLabels map[string]string
	Now        time.Time
}

// PersistSaleResult reports the persisted sale and whether an existing sale
// document was updated in place (idempotent re-delivery).
type PersistSaleResult struct {
	Sale        domain.Sale
	Replayed    bool
	Allocations []domain.LotAllocation
	Stocks      map[string]domain.StockLevel
}

// SaleHistoryQuery filters the order-history projection for one contact.
type SaleHistoryQuery struct {
	BusinessID string
	ContactID  string
	PageSize   int
	PageToken  string
}

// StockRepository exposes read access to stock levels outside the sale
// transaction (admin and diagnostics surfaces).
type StockRepository interface {
	GetLevel(ctx context.Context, variationID, locationID string) (domain.StockLevel, error)
	ListLots(ctx context.Context, businessID, variationID, locationID string) ([]domain.PurchaseLot, error)
}

// CounterRepository implements atomic counter increments used for
// business-scoped reference numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig captures optional counter bounds and defaults.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// UserRepository persists back-office logins and their role grants.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) (HealthReport, error)
}

// HealthReport aggregates dependency probe outcomes.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}

// HealthCheck describes one dependency probe outcome.
type HealthCheck struct {
	Status    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}
