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

type stubSaleService struct {
	syncFn    func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error)
	ordersFn  func(context.Context, services.ContactOrdersQuery) (services.ContactOrderHistory, error)
	invoiceFn func(context.Context, string, string) (services.Sale, error)
}

func (s *stubSaleService) SyncOrder(ctx context.Context, cmd services.SyncOrderCommand) (services.SyncOrderResult, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx, cmd)
	}
	return services.SyncOrderResult{}, errors.New("not implemented")
}

func (s *stubSaleService) OrdersByPhone(ctx context.Context, query services.ContactOrdersQuery) (services.ContactOrderHistory, error) {
	if s.ordersFn != nil {
		return s.ordersFn(ctx, query)
	}
	return services.ContactOrderHistory{}, errors.New("not implemented")
}

func (s *stubSaleService) FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (services.Sale, error) {
	if s.invoiceFn != nil {
		return s.invoiceFn(ctx, businessID, invoiceNo)
	}
	return services.Sale{}, errors.New("not implemented")
}

func newWebhookRouter(sales services.SaleService, opts ...WebhookHandlersOption) chi.Router {
	handler := NewWebhookHandlers(nil, sales, opts...)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func orderBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := map[string]any{
		"id":     9001,
		"number": "1001",
		"status": "completed",
		"total":  "24.50",
		"billing": map[string]any{
			"first_name": "Jane",
			"phone":      "5550102030",
		},
		"line_items": []map[string]any{{
			"id":        501,
			"name":      "Premium Plan",
			"sku":       "PP-01",
			"quantity":  2,
			"total":     "20.00",
			"total_tax": "2.00",
		}},
	}
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return body
}

func TestWebhookReceiveOrderSuccess(t *testing.T) {
	var captured services.SyncOrderCommand
	service := &stubSaleService{
		syncFn: func(_ context.Context, cmd services.SyncOrderCommand) (services.SyncOrderResult, error) {
			captured = cmd
			return services.SyncOrderResult{
				Sale: services.Sale{
					ID:            "biz_1__1001",
					InvoiceNo:     "1001",
					ContactID:     "con_1",
					Status:        domain.SaleStatusFinal,
					PaymentStatus: domain.PaymentStatusPaid,
					FinalTotal:    2450,
				},
				Finalized: true,
			}, nil
		},
	}
	router := newWebhookRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BusinessID != "biz_1" {
		t.Fatalf("expected business from URL, got %s", captured.BusinessID)
	}
	if captured.Order.Number != "1001" {
		t.Fatalf("expected decoded order, got %+v", captured.Order)
	}

	var resp orderSyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Message != "order synced" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if resp.Sale.ID != "biz_1__1001" || resp.Sale.FinalTotal != "24.50" {
		t.Fatalf("unexpected sale payload: %+v", resp.Sale)
	}
}

func TestWebhookReceiveOrderReplayedMessage(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{
				Sale:     services.Sale{ID: "biz_1__1001", InvoiceNo: "1001"},
				Replayed: true,
			}, nil
		},
	}
	router := newWebhookRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))

	var resp orderSyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !resp.Sale.Replayed {
		t.Fatalf("expected replayed flag")
	}
	if resp.Message != "order already synced, sale updated" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestWebhookReceiveOrderMappingFailure(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{}, &services.OrderMappingError{
				OrderNumber: "1001",
				Product:     "Ghost Item SKU:GH-01",
				Reason:      "not found in catalog",
			}
		},
	}
	router := newWebhookRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var resp struct {
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Error != "order_product_not_found" {
		t.Fatalf("unexpected error code: %q", resp.Error)
	}
	if resp.Details["order_number"] != "1001" || resp.Details["product"] != "Ghost Item SKU:GH-01" {
		t.Fatalf("unexpected details: %+v", resp.Details)
	}
}

func TestWebhookReceiveOrderInsufficientStock(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{}, &services.InsufficientStockError{
				OrderNumber: "1001",
				Product:     "Premium Plan SKU:PP-01",
			}
		},
	}
	router := newWebhookRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Error != "order_insuficient_product_qty" {
		t.Fatalf("unexpected error code: %q", resp.Error)
	}
}

func TestWebhookReceiveOrderInvalidInput(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{}, services.ErrSaleInvalidInput
		},
	}
	router := newWebhookRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookReceiveOrderUnknownFailure(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{}, errors.New("firestore melted")
		},
	}
	router := newWebhookRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestWebhookReceiveOrderMalformedBody(t *testing.T) {
	router := newWebhookRouter(&stubSaleService{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookReceiveOrderRateLimited(t *testing.T) {
	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{Sale: services.Sale{ID: "biz_1__1001"}}, nil
		},
	}
	router := newWebhookRouter(service, WithWebhookRateLimit(1, time.Minute))

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first delivery accepted, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
}

func TestWebhookReceiveOrderRequiresBearerToken(t *testing.T) {
	manager, err := auth.NewTokenManager("test-signing-secret", "poslink-api", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	authn := auth.NewAuthenticator(manager)

	service := &stubSaleService{
		syncFn: func(context.Context, services.SyncOrderCommand) (services.SyncOrderResult, error) {
			return services.SyncOrderResult{Sale: services.Sale{ID: "biz_1__1001"}}, nil
		},
	}
	handler := NewWebhookHandlers(authn, service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rr.Code)
	}

	token, _, err := manager.Issue("usr_1", "storefront", "biz_1", []string{auth.RoleUser})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/biz_1", orderBody(t))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with valid token, got %d: %s", rr.Code, rr.Body.String())
	}
}
