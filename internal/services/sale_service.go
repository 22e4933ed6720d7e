package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/repositories"
)

var (
	// ErrSaleInvalidInput indicates the caller supplied an invalid order payload.
	ErrSaleInvalidInput = errors.New("sale: invalid input")
	// ErrSaleNotFound indicates no sale matches the lookup.
	ErrSaleNotFound = errors.New("sale: not found")
)

// InsufficientStockError reports a sale line whose ordered quantity exceeds
// the available purchase-lot stock. The sale was rolled back in full.
type InsufficientStockError struct {
	OrderNumber string
	Product     string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("order %s: insufficient stock for %s", e.OrderNumber, e.Product)
}

// SaleServiceDeps bundles collaborators required to construct a sale service.
type SaleServiceDeps struct {
	Sales    repositories.SaleRepository
	Contacts ContactService
	Mapper   *LineMapper
	Events   EventPublisher

	// FinalOrderStatus is the storefront order status that finalizes the sale
	// and moves stock. Any other status persists a draft.
	FinalOrderStatus string
	// DefaultLocationID receives the stock movement of synced sales.
	DefaultLocationID string
	// PaymentMethod tags the single payment line recorded per synced order.
	PaymentMethod string

	IDGenerator func() string
	Clock       func() time.Time
	Logger      *zap.Logger
}

type saleService struct {
	sales    repositories.SaleRepository
	contacts ContactService
	mapper   *LineMapper
	events   EventPublisher

	finalOrderStatus  string
	defaultLocationID string
	paymentMethod     string

	idGenerator func() string
	clock       func() time.Time
	logger      *zap.Logger
}

var _ SaleService = (*saleService)(nil)

// NewSaleService constructs the order reconciliation service.
func NewSaleService(deps SaleServiceDeps) (SaleService, error) {
	if deps.Sales == nil {
		return nil, errors.New("sale service: sale repository is required")
	}
	if deps.Contacts == nil {
		return nil, errors.New("sale service: contact service is required")
	}
	if deps.Mapper == nil {
		return nil, errors.New("sale service: line mapper is required")
	}

	finalStatus := strings.ToLower(strings.TrimSpace(deps.FinalOrderStatus))
	if finalStatus == "" {
		return nil, errors.New("sale service: final order status is required")
	}
	locationID := strings.TrimSpace(deps.DefaultLocationID)
	if locationID == "" {
		return nil, errors.New("sale service: default location id is required")
	}
	paymentMethod := strings.TrimSpace(deps.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = "storefront"
	}

	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// A caller handing over a nil concrete publisher produces a non-nil
	// interface; treat it as no publisher so events are skipped instead of
	// panicking after the sale has committed.
	events := deps.Events
	if v := reflect.ValueOf(events); events != nil && v.Kind() == reflect.Pointer && v.IsNil() {
		events = nil
	}

	return &saleService{
		sales:             deps.Sales,
		contacts:          deps.Contacts,
		mapper:            deps.Mapper,
		events:            events,
		finalOrderStatus:  finalStatus,
		defaultLocationID: locationID,
		paymentMethod:     paymentMethod,
		idGenerator:       idGenerator,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *saleService) SyncOrder(ctx context.Context, cmd SyncOrderCommand) (SyncOrderResult, error) {
	businessID := strings.TrimSpace(cmd.BusinessID)
	if businessID == "" {
		return SyncOrderResult{}, fmt.Errorf("%w: business id is required", ErrSaleInvalidInput)
	}
	orderNumber := strings.TrimSpace(cmd.Order.Number)
	if orderNumber == "" {
		return SyncOrderResult{}, fmt.Errorf("%w: order number is required", ErrSaleInvalidInput)
	}
	if len(cmd.Order.LineItems) == 0 {
		return SyncOrderResult{}, fmt.Errorf("%w: order has no line items", ErrSaleInvalidInput)
	}

	contact, err := s.contacts.ResolveForOrder(ctx, ResolveOrderContactCommand{
		BusinessID: businessID,
		Billing:    cmd.Order.Billing,
	})
	if err != nil {
		return SyncOrderResult{}, err
	}

	mapped, err := s.mapper.MapLines(ctx, businessID, cmd.Order)
	if err != nil {
		return SyncOrderResult{}, err
	}

	finalize := strings.EqualFold(strings.TrimSpace(cmd.Order.Status), s.finalOrderStatus)
	sale, err := s.assemble(businessID, orderNumber, contact, mapped, cmd.Order, finalize)
	if err != nil {
		return SyncOrderResult{}, err
	}

	result, err := s.sales.PersistSale(ctx, repositories.PersistSaleRequest{
		Sale:       sale,
		Finalize:   finalize,
		LineLabels: mapped.Labels,
		Now:        s.clock(),
	})
	if err != nil {
		return SyncOrderResult{}, s.translateSaleError(orderNumber, err)
	}

	s.publishEvents(ctx, result, finalize)

	return SyncOrderResult{
		Sale:        result.Sale,
		Contact:     contact,
		Replayed:    result.Replayed,
		Finalized:   finalize,
		Allocations: result.Allocations,
	}, nil
}

// assemble builds the sale transaction from the resolved contact and mapped
// lines. The sale ID derives from (business, order number) so re-delivery of
// the same order lands on the same document.
func (s *saleService) assemble(businessID, orderNumber string, contact Contact, mapped MappedLines, order OrderPayload, finalize bool) (Sale, error) {
	discount, err := domain.ParseAmount(order.DiscountTotal)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: discount total: %v", ErrSaleInvalidInput, err)
	}
	shipping, err := domain.ParseAmount(order.ShippingTotal)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: shipping total: %v", ErrSaleInvalidInput, err)
	}
	total, err := domain.ParseAmount(order.Total)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: order total: %v", ErrSaleInvalidInput, err)
	}

	addresses, err := json.Marshal(struct {
		Billing  OrderAddress `json:"billing"`
		Shipping OrderAddress `json:"shipping"`
	}{Billing: order.Billing, Shipping: order.Shipping})
	if err != nil {
		return Sale{}, fmt.Errorf("encode order addresses: %w", err)
	}

	lines := make([]domain.SaleLine, len(mapped.Lines))
	for i, line := range mapped.Lines {
		line.ID = "sln_" + s.idGenerator()
		lines[i] = line
	}

	status := domain.SaleStatusDraft
	paymentStatus := domain.PaymentStatusDue
	if finalize {
		status = domain.SaleStatusFinal
		paymentStatus = domain.PaymentStatusPaid
	}

	transactionDate := order.DateCreated.UTC()
	if transactionDate.IsZero() {
		transactionDate = s.clock()
	}
	paidOn := transactionDate
	if order.DatePaid != nil && !order.DatePaid.IsZero() {
		paidOn = order.DatePaid.UTC()
	}

	return domain.Sale{
		ID:              businessID + "__" + orderNumber,
		BusinessID:      businessID,
		LocationID:      s.defaultLocationID,
		ContactID:       contact.ID,
		Status:          status,
		PaymentStatus:   paymentStatus,
		ShippingStatus:  domain.ShippingStatusOrdered,
		IsQuotation:     status == domain.SaleStatusDraft,
		Source:          domain.SaleSourceStorefront,
		InvoiceNo:       orderNumber,
		DiscountType:    "fixed",
		DiscountAmount:  discount,
		ShippingCharges: shipping,
		ShippingDetails: shippingDetails(order),
		ShippingAddress: formatShippingAddress(order.Shipping),
		FinalTotal:      total,
		StaffNote:       mapped.StaffNote,
		OrderAddresses:  string(addresses),
		CustomerGroupID: contact.CustomerGroupID,
		TransactionDate: transactionDate,
		CreatedBy:       "order_sync",
		Lines:           lines,
		Payments: []domain.PaymentLine{{
			ID:     "pay_" + s.idGenerator(),
			Amount: total,
			Method: s.paymentMethod,
			Note:   strings.TrimSpace(order.PaymentMethodTitle),
			PaidOn: paidOn,
		}},
	}, nil
}

func (s *saleService) OrdersByPhone(ctx context.Context, query ContactOrdersQuery) (ContactOrderHistory, error) {
	contact, err := s.contacts.FindByMobile(ctx, query.BusinessID, query.Phone)
	if err != nil {
		return ContactOrderHistory{}, err
	}

	orders, err := s.sales.ListByContact(ctx, repositories.SaleHistoryQuery{
		BusinessID: contact.BusinessID,
		ContactID:  contact.ID,
		PageSize:   query.PageSize,
		PageToken:  query.PageToken,
	})
	if err != nil {
		return ContactOrderHistory{}, s.translateSaleError("", err)
	}

	return ContactOrderHistory{Contact: contact, Orders: orders}, nil
}

func (s *saleService) FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (Sale, error) {
	businessID = strings.TrimSpace(businessID)
	invoiceNo = strings.TrimSpace(invoiceNo)
	if businessID == "" {
		return Sale{}, fmt.Errorf("%w: business id is required", ErrSaleInvalidInput)
	}
	if invoiceNo == "" {
		return Sale{}, fmt.Errorf("%w: invoice number is required", ErrSaleInvalidInput)
	}

	sale, err := s.sales.FindByInvoiceNo(ctx, businessID, invoiceNo)
	if err != nil {
		return Sale{}, s.translateSaleError(invoiceNo, err)
	}
	return sale, nil
}

// publishEvents emits sale and stock events after a successful sync. Publish
// failures are logged, never surfaced; the sale is already committed.
func (s *saleService) publishEvents(ctx context.Context, result repositories.PersistSaleResult, finalized bool) {
	if s.events == nil {
		return
	}

	event := EventSaleCreated
	if result.Replayed {
		event = EventSaleReplayed
	}
	now := s.clock()
	if _, err := s.events.PublishSaleEvent(ctx, SaleEventMessage{
		Event:      event,
		SaleID:     result.Sale.ID,
		BusinessID: result.Sale.BusinessID,
		InvoiceNo:  result.Sale.InvoiceNo,
		FinalTotal: result.Sale.FinalTotal,
		Replayed:   result.Replayed,
		OccurredAt: now,
	}); err != nil {
		s.logger.Warn("publish sale event failed",
			zap.String("sale_id", result.Sale.ID),
			zap.Error(err))
	}

	if !finalized {
		return
	}
	for _, line := range result.Sale.Lines {
		stock, ok := result.Stocks[line.VariationID]
		if !ok {
			continue
		}
		if _, err := s.events.PublishStockEvent(ctx, StockEventMessage{
			Event:       EventStockDecremented,
			BusinessID:  result.Sale.BusinessID,
			ProductID:   line.ProductID,
			VariationID: line.VariationID,
			LocationID:  result.Sale.LocationID,
			Quantity:    line.Quantity,
			OnHand:      stock.OnHand,
			OccurredAt:  now,
		}); err != nil {
			s.logger.Warn("publish stock event failed",
				zap.String("sale_id", result.Sale.ID),
				zap.String("variation_id", line.VariationID),
				zap.Error(err))
		}
	}
}

func (s *saleService) translateSaleError(orderNumber string, err error) error {
	var saleErr *repositories.SaleError
	if errors.As(err, &saleErr) {
		switch saleErr.Code {
		case repositories.SaleErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrSaleInvalidInput, saleErr.Message)
		case repositories.SaleErrorNotFound:
			return fmt.Errorf("%w: %s", ErrSaleNotFound, saleErr.Message)
		case repositories.SaleErrorInsufficientStock:
			return &InsufficientStockError{
				OrderNumber: orderNumber,
				Product:     saleErr.ProductName,
			}
		}
	}
	return err
}

func shippingDetails(order OrderPayload) string {
	titles := make([]string, 0, len(order.ShippingLines))
	for _, line := range order.ShippingLines {
		if title := strings.TrimSpace(line.MethodTitle); title != "" {
			titles = append(titles, title)
		}
	}
	return strings.Join(titles, ", ")
}

func formatShippingAddress(addr OrderAddress) string {
	parts := make([]string, 0, 6)
	for _, part := range []string{addr.Address1, addr.Address2, addr.City, addr.State, addr.Postcode, addr.Country} {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
