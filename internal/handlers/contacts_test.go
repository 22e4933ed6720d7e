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
	"github.com/poslink/api/internal/platform/auth"
	"github.com/poslink/api/internal/services"
)

type stubContactService struct {
	resolveFn func(context.Context, services.ResolveOrderContactCommand) (services.Contact, error)
	createFn  func(context.Context, services.CreateContactCommand) (services.ContactResolution, error)
	findFn    func(context.Context, string, string) (services.Contact, error)
}

func (s *stubContactService) ResolveForOrder(ctx context.Context, cmd services.ResolveOrderContactCommand) (services.Contact, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, cmd)
	}
	return services.Contact{}, errors.New("not implemented")
}

func (s *stubContactService) CreateContact(ctx context.Context, cmd services.CreateContactCommand) (services.ContactResolution, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.ContactResolution{}, errors.New("not implemented")
}

func (s *stubContactService) FindByMobile(ctx context.Context, businessID, mobile string) (services.Contact, error) {
	if s.findFn != nil {
		return s.findFn(ctx, businessID, mobile)
	}
	return services.Contact{}, errors.New("not implemented")
}

func newContactRouter(contacts services.ContactService, sales services.SaleService) chi.Router {
	handler := NewContactHandlers(nil, contacts, sales)
	router := chi.NewRouter()
	router.Route("/", handler.Routes)
	return router
}

func withTestIdentity(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UserID:     "usr_1",
		Username:   "owner",
		BusinessID: "biz_1",
		Roles:      []string{"user"},
	}))
}

func TestContactCreateNew(t *testing.T) {
	var captured services.CreateContactCommand
	contacts := &stubContactService{
		createFn: func(_ context.Context, cmd services.CreateContactCommand) (services.ContactResolution, error) {
			captured = cmd
			return services.ContactResolution{
				Contact: domain.Contact{ID: "con_1", ContactCode: "CO0001"},
				Created: true,
			}, nil
		},
	}
	router := newContactRouter(contacts, &stubSaleService{})

	body := bytes.NewBufferString(`{"first_name":"Jane","mobile":"5550102030","email":"jane@example.com"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/contacts", body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BusinessID != "biz_1" {
		t.Fatalf("expected business from identity, got %s", captured.BusinessID)
	}
	if captured.CreatedBy != "usr_1" {
		t.Fatalf("expected actor from identity, got %s", captured.CreatedBy)
	}

	var resp createContactResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !resp.Success || resp.ContactID != "con_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Msg != "contact created" {
		t.Fatalf("unexpected message: %q", resp.Msg)
	}
}

func TestContactCreateExisting(t *testing.T) {
	contacts := &stubContactService{
		createFn: func(context.Context, services.CreateContactCommand) (services.ContactResolution, error) {
			return services.ContactResolution{
				Contact: domain.Contact{ID: "con_9"},
				Created: false,
			}, nil
		},
	}
	router := newContactRouter(contacts, &stubSaleService{})

	body := bytes.NewBufferString(`{"business_id":"biz_1","first_name":"Jane","mobile":"5550102030"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contacts", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp createContactResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Msg != "contact already exists" || resp.ContactID != "con_9" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestContactCreateInvalidInput(t *testing.T) {
	contacts := &stubContactService{
		createFn: func(context.Context, services.CreateContactCommand) (services.ContactResolution, error) {
			return services.ContactResolution{}, services.ErrContactInvalidInput
		},
	}
	router := newContactRouter(contacts, &stubSaleService{})

	body := bytes.NewBufferString(`{"business_id":"biz_1"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contacts", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestContactOrdersHistory(t *testing.T) {
	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	var captured services.ContactOrdersQuery
	sales := &stubSaleService{
		ordersFn: func(_ context.Context, query services.ContactOrdersQuery) (services.ContactOrderHistory, error) {
			captured = query
			return services.ContactOrderHistory{
				Contact: domain.Contact{
					ID:          "con_1",
					ContactCode: "CO0001",
					Name:        "Jane Doe",
					Mobile:      "5550102030",
				},
				Orders: domain.CursorPage[services.SaleSummary]{
					Items: []services.SaleSummary{{
						ID:              "biz_1__1001",
						InvoiceNo:       "1001",
						TransactionDate: when,
						FinalTotal:      2450,
						PaymentStatus:   domain.PaymentStatusPaid,
						Status:          domain.SaleStatusFinal,
					}},
					NextPageToken: "next-token",
				},
			}, nil
		},
	}
	router := newContactRouter(&stubContactService{}, sales)

	body := bytes.NewBufferString(`{"phone":"5550102030","page_size":5}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/contacts:orders", body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BusinessID != "biz_1" || captured.Phone != "5550102030" {
		t.Fatalf("unexpected query: %+v", captured)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}

	var resp contactOrdersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Contact.ContactCode != "CO0001" {
		t.Fatalf("unexpected contact: %+v", resp.Contact)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].FinalTotal != "24.50" {
		t.Fatalf("unexpected orders: %+v", resp.Orders)
	}
	if resp.NextPageToken != "next-token" {
		t.Fatalf("unexpected page token: %q", resp.NextPageToken)
	}
}

func TestContactOrdersDefaultsPageSize(t *testing.T) {
	var captured services.ContactOrdersQuery
	sales := &stubSaleService{
		ordersFn: func(_ context.Context, query services.ContactOrdersQuery) (services.ContactOrderHistory, error) {
			captured = query
			return services.ContactOrderHistory{}, nil
		},
	}
	router := newContactRouter(&stubContactService{}, sales)

	body := bytes.NewBufferString(`{"business_id":"biz_1","phone":"5550102030"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contacts:orders", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Pagination.PageSize != defaultHistoryPageSize {
		t.Fatalf("expected default page size, got %d", captured.Pagination.PageSize)
	}
}

func TestContactOrdersUnknownPhone(t *testing.T) {
	sales := &stubSaleService{
		ordersFn: func(context.Context, services.ContactOrdersQuery) (services.ContactOrderHistory, error) {
			return services.ContactOrderHistory{}, services.ErrContactNotFound
		},
	}
	router := newContactRouter(&stubContactService{}, sales)

	body := bytes.NewBufferString(`{"business_id":"biz_1","phone":"0000000000"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contacts:orders", body))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Error != "contact_not_found" {
		t.Fatalf("unexpected error code: %q", resp.Error)
	}
	if resp.Message == "" {
		t.Fatalf("expected a message in the error envelope")
	}
}
