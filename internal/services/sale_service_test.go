package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/repositories"
)

type stubSaleRepository struct {
	persistFn     func(context.Context, repositories.PersistSaleRequest) (repositories.PersistSaleResult, error)
	findInvoiceFn func(context.Context, string, string) (domain.Sale, error)
	listFn        func(context.Context, repositories.SaleHistoryQuery) (domain.CursorPage[domain.SaleSummary], error)
	persisted     []repositories.PersistSaleRequest
}

func (s *stubSaleRepository) PersistSale(ctx context.Context, req repositories.PersistSaleRequest) (repositories.PersistSaleResult, error) {
	s.persisted = append(s.persisted, req)
	if s.persistFn != nil {
		return s.persistFn(ctx, req)
	}
	return repositories.PersistSaleResult{Sale: req.Sale}, nil
}

func (s *stubSaleRepository) FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (domain.Sale, error) {
	if s.findInvoiceFn != nil {
		return s.findInvoiceFn(ctx, businessID, invoiceNo)
	}
	return domain.Sale{}, repositories.NewSaleError(repositories.SaleErrorNotFound, "no sale", nil)
}

func (s *stubSaleRepository) ListByContact(ctx context.Context, query repositories.SaleHistoryQuery) (domain.CursorPage[domain.SaleSummary], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.SaleSummary]{}, nil
}

type stubContactService struct {
	resolveFn func(context.Context, ResolveOrderContactCommand) (Contact, error)
	findFn    func(context.Context, string, string) (Contact, error)
}

func (s *stubContactService) ResolveForOrder(ctx context.Context, cmd ResolveOrderContactCommand) (Contact, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, cmd)
	}
	return Contact{ID: "con_1", BusinessID: cmd.BusinessID, CustomerGroupID: "grp_retail"}, nil
}

func (s *stubContactService) CreateContact(context.Context, CreateContactCommand) (ContactResolution, error) {
	return ContactResolution{}, errors.New("not implemented")
}

func (s *stubContactService) FindByMobile(ctx context.Context, businessID, mobile string) (Contact, error) {
	if s.findFn != nil {
		return s.findFn(ctx, businessID, mobile)
	}
	return Contact{}, ErrContactNotFound
}

type stubEventPublisher struct {
	saleEvents  []SaleEventMessage
	stockEvents []StockEventMessage
	saleErr     error
}

func (s *stubEventPublisher) PublishSaleEvent(_ context.Context, message SaleEventMessage) (string, error) {
	s.saleEvents = append(s.saleEvents, message)
	return "msg_1", s.saleErr
}

func (s *stubEventPublisher) PublishStockEvent(_ context.Context, message StockEventMessage) (string, error) {
	s.stockEvents = append(s.stockEvents, message)
	return "msg_2", nil
}

func newTestSaleService(t *testing.T, sales *stubSaleRepository, contacts *stubContactService, events *stubEventPublisher) SaleService {
	t.Helper()
	mapper := newTestMapper(t, &stubProductRepository{products: map[string]domain.Product{"prd_1": catalogProduct()}}, "")
	deps := SaleServiceDeps{
		Sales:             sales,
		Contacts:          contacts,
		Mapper:            mapper,
		FinalOrderStatus:  "completed",
		DefaultLocationID: "loc_main",
		IDGenerator: func() string {
			return "fixed"
		},
		Clock: func() time.Time {
			return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		},
	}
	// Assigning a nil *stubEventPublisher directly would produce a non-nil
	// interface wrapping a nil pointer.
	if events != nil {
		deps.Events = events
	}
	svc, err := NewSaleService(deps)
	if err != nil {
		t.Fatalf("new sale service: %v", err)
	}
	return svc
}

func completedOrder() domain.OrderPayload {
	paid := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)
	return domain.OrderPayload{
		ID:                 9001,
		Number:             "1001",
		Status:             "completed",
		DiscountTotal:      "1.50",
		ShippingTotal:      "4.00",
		Total:              "24.50",
		PaymentMethod:      "card",
		PaymentMethodTitle: "Credit Card",
		DateCreated:        time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
		DatePaid:           &paid,
		Billing:            domain.OrderAddress{FirstName: "Jane", Phone: "5550102030", Email: "jane@example.com"},
		Shipping:           domain.OrderAddress{Address1: "1 Main St", City: "Springfield", Country: "US"},
		LineItems: []domain.OrderLineItem{{
			ID:       501,
			Name:     "Premium Plan",
			SKU:      "PP-01",
			Quantity: 2,
			Total:    "20.00",
			TotalTax: "2.00",
			Metadata: []domain.OrderMetaDatum{{Key: "pos_product_id", Value: "prd_1"}},
		}},
		ShippingLines: []domain.OrderShipLine{{MethodTitle: "Express", Total: "4.00"}},
	}
}

func TestSaleServiceSyncOrderFinalizesCompletedOrder(t *testing.T) {
	sales := &stubSaleRepository{}
	events := &stubEventPublisher{}
	svc := newTestSaleService(t, sales, &stubContactService{}, events)

	result, err := svc.SyncOrder(context.Background(), SyncOrderCommand{
		BusinessID: "biz_1",
		Order:      completedOrder(),
	})
	if err != nil {
		t.Fatalf("sync order: %v", err)
	}

	if len(sales.persisted) != 1 {
		t.Fatalf("expected one persist call, got %d", len(sales.persisted))
	}
	req := sales.persisted[0]
	if !req.Finalize {
		t.Fatalf("expected finalize for completed order")
	}
	sale := req.Sale
	if sale.ID != "biz_1__1001" {
		t.Fatalf("expected deterministic sale id, got %s", sale.ID)
	}
	if sale.Status != domain.SaleStatusFinal {
		t.Fatalf("expected final status, got %s", sale.Status)
	}
	if sale.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", sale.PaymentStatus)
	}
	if sale.InvoiceNo != "1001" {
		t.Fatalf("expected invoice 1001, got %s", sale.InvoiceNo)
	}
	if sale.Source != domain.SaleSourceStorefront {
		t.Fatalf("expected storefront source, got %s", sale.Source)
	}
	if sale.FinalTotal != 2450 {
		t.Fatalf("expected total 2450, got %d", sale.FinalTotal)
	}
	if sale.DiscountAmount != 150 || sale.ShippingCharges != 400 {
		t.Fatalf("unexpected discount/shipping: %d %d", sale.DiscountAmount, sale.ShippingCharges)
	}
	if sale.ShippingDetails != "Express" {
		t.Fatalf("expected joined shipping methods, got %q", sale.ShippingDetails)
	}
	if sale.LocationID != "loc_main" {
		t.Fatalf("expected default location, got %s", sale.LocationID)
	}

	if len(sale.Payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(sale.Payments))
	}
	payment := sale.Payments[0]
	if payment.Amount != 2450 {
		t.Fatalf("expected payment amount 2450, got %d", payment.Amount)
	}
	if payment.Note != "Credit Card" {
		t.Fatalf("expected payment note from method title, got %q", payment.Note)
	}
	if !payment.PaidOn.Equal(time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected paid-on from date_paid, got %v", payment.PaidOn)
	}

	var addresses struct {
		Billing  domain.OrderAddress `json:"billing"`
		Shipping domain.OrderAddress `json:"shipping"`
	}
	if err := json.Unmarshal([]byte(sale.OrderAddresses), &addresses); err != nil {
		t.Fatalf("decode order addresses: %v", err)
	}
	if addresses.Billing.FirstName != "Jane" || addresses.Shipping.City != "Springfield" {
		t.Fatalf("unexpected address snapshot: %+v", addresses)
	}

	if req.LineLabels["var_1"] != "Premium Plan SKU:PP-01" {
		t.Fatalf("unexpected line labels: %+v", req.LineLabels)
	}
	if !result.Finalized {
		t.Fatalf("expected finalized result")
	}
	if len(events.saleEvents) != 1 || events.saleEvents[0].Event != EventSaleCreated {
		t.Fatalf("unexpected sale events: %+v", events.saleEvents)
	}
}

func TestSaleServiceSyncOrderDraftsNonFinalStatus(t *testing.T) {
	sales := &stubSaleRepository{}
	svc := newTestSaleService(t, sales, &stubContactService{}, nil)

	order := completedOrder()
	order.Status = "processing"
	if _, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: order}); err != nil {
		t.Fatalf("sync order: %v", err)
	}

	req := sales.persisted[0]
	if req.Finalize {
		t.Fatalf("expected no finalize for processing order")
	}
	if req.Sale.Status != domain.SaleStatusDraft {
		t.Fatalf("expected draft status, got %s", req.Sale.Status)
	}
	if req.Sale.PaymentStatus != domain.PaymentStatusDue {
		t.Fatalf("expected due payment status, got %s", req.Sale.PaymentStatus)
	}
	if !req.Sale.IsQuotation {
		t.Fatalf("expected quotation flag on draft")
	}
}

func TestSaleServiceSyncOrderTranslatesInsufficientStock(t *testing.T) {
	sales := &stubSaleRepository{
		persistFn: func(context.Context, repositories.PersistSaleRequest) (repositories.PersistSaleResult, error) {
			err := repositories.NewSaleError(repositories.SaleErrorInsufficientStock, "short by 5", nil)
			err.VariationID = "var_1"
			err.ProductName = "Premium Plan SKU:PP-01"
			return repositories.PersistSaleResult{}, err
		},
	}
	svc := newTestSaleService(t, sales, &stubContactService{}, nil)

	_, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: completedOrder()})

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.OrderNumber != "1001" {
		t.Fatalf("expected order number, got %s", stockErr.OrderNumber)
	}
	if stockErr.Product != "Premium Plan SKU:PP-01" {
		t.Fatalf("unexpected product label: %s", stockErr.Product)
	}
}

func TestSaleServiceSyncOrderReplayEmitsReplayedEvent(t *testing.T) {
	sales := &stubSaleRepository{
		persistFn: func(_ context.Context, req repositories.PersistSaleRequest) (repositories.PersistSaleResult, error) {
			return repositories.PersistSaleResult{Sale: req.Sale, Replayed: true}, nil
		},
	}
	events := &stubEventPublisher{}
	svc := newTestSaleService(t, sales, &stubContactService{}, events)

	result, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: completedOrder()})
	if err != nil {
		t.Fatalf("sync order: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("expected replayed result")
	}
	if len(events.saleEvents) != 1 || events.saleEvents[0].Event != EventSaleReplayed {
		t.Fatalf("unexpected sale events: %+v", events.saleEvents)
	}
}

func TestSaleServiceSyncOrderPublishesStockEvents(t *testing.T) {
	sales := &stubSaleRepository{
		persistFn: func(_ context.Context, req repositories.PersistSaleRequest) (repositories.PersistSaleResult, error) {
			return repositories.PersistSaleResult{
				Sale: req.Sale,
				Stocks: map[string]domain.StockLevel{
					"var_1": {VariationID: "var_1", ProductID: "prd_1", LocationID: "loc_main", OnHand: 8},
				},
			}, nil
		},
	}
	events := &stubEventPublisher{}
	svc := newTestSaleService(t, sales, &stubContactService{}, events)

	if _, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: completedOrder()}); err != nil {
		t.Fatalf("sync order: %v", err)
	}

	if len(events.stockEvents) != 1 {
		t.Fatalf("expected one stock event, got %d", len(events.stockEvents))
	}
	stock := events.stockEvents[0]
	if stock.Event != EventStockDecremented || stock.VariationID != "var_1" || stock.Quantity != 2 || stock.OnHand != 8 {
		t.Fatalf("unexpected stock event: %+v", stock)
	}
}

func TestSaleServiceSyncOrderPublishFailureDoesNotFailSync(t *testing.T) {
	events := &stubEventPublisher{saleErr: errors.New("broker down")}
	svc := newTestSaleService(t, &stubSaleRepository{}, &stubContactService{}, events)

	if _, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: completedOrder()}); err != nil {
		t.Fatalf("expected sync to succeed despite publish failure, got %v", err)
	}
}

func TestSaleServiceSyncOrderValidatesInput(t *testing.T) {
	svc := newTestSaleService(t, &stubSaleRepository{}, &stubContactService{}, nil)

	cases := []struct {
		name string
		cmd  SyncOrderCommand
	}{
		{name: "missing business", cmd: SyncOrderCommand{Order: completedOrder()}},
		{name: "missing order number", cmd: func() SyncOrderCommand {
			order := completedOrder()
			order.Number = " "
			return SyncOrderCommand{BusinessID: "biz_1", Order: order}
		}()},
		{name: "no lines", cmd: func() SyncOrderCommand {
			order := completedOrder()
			order.LineItems = nil
			return SyncOrderCommand{BusinessID: "biz_1", Order: order}
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SyncOrder(context.Background(), tc.cmd); !errors.Is(err, ErrSaleInvalidInput) {
				t.Fatalf("expected ErrSaleInvalidInput, got %v", err)
			}
		})
	}
}

func TestSaleServiceOrdersByPhoneReturnsHistory(t *testing.T) {
	contact := Contact{ID: "con_1", BusinessID: "biz_1", Name: "Jane Smith"}
	contacts := &stubContactService{
		findFn: func(_ context.Context, businessID, mobile string) (Contact, error) {
			if businessID != "biz_1" || mobile != "5550102030" {
				t.Fatalf("unexpected lookup: %s %s", businessID, mobile)
			}
			return contact, nil
		},
	}
	sales := &stubSaleRepository{
		listFn: func(_ context.Context, query repositories.SaleHistoryQuery) (domain.CursorPage[domain.SaleSummary], error) {
			if query.ContactID != "con_1" {
				t.Fatalf("expected contact scope, got %s", query.ContactID)
			}
			return domain.CursorPage[domain.SaleSummary]{
				Items: []domain.SaleSummary{{ID: "biz_1__1001", InvoiceNo: "1001", FinalTotal: 2450}},
			}, nil
		},
	}
	svc := newTestSaleService(t, sales, contacts, nil)

	history, err := svc.OrdersByPhone(context.Background(), ContactOrdersQuery{
		BusinessID: "biz_1",
		Phone:      "5550102030",
	})
	if err != nil {
		t.Fatalf("orders by phone: %v", err)
	}
	if history.Contact.ID != "con_1" {
		t.Fatalf("expected matched contact, got %+v", history.Contact)
	}
	if len(history.Orders.Items) != 1 || history.Orders.Items[0].InvoiceNo != "1001" {
		t.Fatalf("unexpected history: %+v", history.Orders)
	}
}

func TestSaleServiceOrdersByPhoneUnknownContact(t *testing.T) {
	svc := newTestSaleService(t, &stubSaleRepository{}, &stubContactService{}, nil)

	_, err := svc.OrdersByPhone(context.Background(), ContactOrdersQuery{BusinessID: "biz_1", Phone: "5559999999"})
	if !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
}

func TestSaleServiceFindByInvoiceNoMapsNotFound(t *testing.T) {
	svc := newTestSaleService(t, &stubSaleRepository{}, &stubContactService{}, nil)

	_, err := svc.FindByInvoiceNo(context.Background(), "biz_1", "nope")
	if !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
}

func TestSaleServiceStaffNoteEndsUpOnSale(t *testing.T) {
	sales := &stubSaleRepository{}
	svc := newTestSaleService(t, sales, &stubContactService{}, nil)

	order := completedOrder()
	order.LineItems[0].Metadata = append(order.LineItems[0].Metadata,
		domain.OrderMetaDatum{Key: "account_email", Value: "buyer@example.com"})

	if _, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: order}); err != nil {
		t.Fatalf("sync order: %v", err)
	}
	if !strings.Contains(sales.persisted[0].Sale.StaffNote, "account_email: buyer@example.com") {
		t.Fatalf("expected staff note on sale, got %q", sales.persisted[0].Sale.StaffNote)
	}
}

func TestSaleServiceSyncOrderSkipsNilConcretePublisher(t *testing.T) {
	sales := &stubSaleRepository{}
	mapper := newTestMapper(t, &stubProductRepository{products: map[string]domain.Product{"prd_1": catalogProduct()}}, "")
	svc, err := NewSaleService(SaleServiceDeps{
		Sales:             sales,
		Contacts:          &stubContactService{},
		Mapper:            mapper,
		Events:            (*stubEventPublisher)(nil),
		FinalOrderStatus:  "completed",
		DefaultLocationID: "loc_main",
	})
	if err != nil {
		t.Fatalf("new sale service: %v", err)
	}

	result, err := svc.SyncOrder(context.Background(), SyncOrderCommand{BusinessID: "biz_1", Order: completedOrder()})
	if err != nil {
		t.Fatalf("sync order: %v", err)
	}
	if !result.Finalized {
		t.Fatalf("expected finalized result")
	}
}
