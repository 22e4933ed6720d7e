package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/platform/auth"
	"github.com/poslink/api/internal/platform/httpx"
	"github.com/poslink/api/internal/services"
)

const maxOrderWebhookBodySize = 1 << 20

// WebhookHandlers ingests storefront order pushes.
type WebhookHandlers struct {
	authn   *auth.Authenticator
	sales   services.SaleService
	limiter rateLimiter
}

// WebhookHandlersOption customises WebhookHandlers construction.
type WebhookHandlersOption func(*WebhookHandlers)

// WithWebhookRateLimit caps order deliveries per business within the window.
func WithWebhookRateLimit(limit int, window time.Duration) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(authn *auth.Authenticator, sales services.SaleService, opts ...WebhookHandlersOption) *WebhookHandlers {
	h := &WebhookHandlers{
		authn: authn,
		sales: sales,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints. Order deliveries carry the same
// bearer tokens as the rest of the API.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireAuth())
		}
		group.Post("/orders/{businessID}", h.receiveOrder)
	})
}

type orderSyncResponse struct {
	Message string      `json:"message"`
	Sale    salePayload `json:"sale"`
}

type salePayload struct {
	ID              string `json:"id"`
	InvoiceNo       string `json:"invoice_no"`
	ContactID       string `json:"contact_id"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	FinalTotal      string `json:"final_total"`
	TransactionDate string `json:"transaction_date"`
	Replayed        bool   `json:"replayed"`
}

func (h *WebhookHandlers) receiveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sale_service_unavailable", "sale service unavailable", http.StatusServiceUnavailable))
		return
	}

	businessID := strings.TrimSpace(chi.URLParam(r, "businessID"))
	if businessID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "business id is required", http.StatusBadRequest))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(businessID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order deliveries, retry later", http.StatusTooManyRequests))
		return
	}

	var order domain.OrderPayload
	if err := decodeJSONBody(r, &order, maxOrderWebhookBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order payload must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.sales.SyncOrder(ctx, services.SyncOrderCommand{
		BusinessID: businessID,
		Order:      order,
	})
	if err != nil {
		writeOrderSyncError(ctx, w, err)
		return
	}

	message := "order synced"
	if result.Replayed {
		message = "order already synced, sale updated"
	}
	writeJSONResponse(w, http.StatusOK, orderSyncResponse{
		Message: message,
		Sale:    buildSalePayload(result.Sale, result.Replayed),
	})
}

func buildSalePayload(sale services.Sale, replayed bool) salePayload {
	return salePayload{
		ID:              sale.ID,
		InvoiceNo:       sale.InvoiceNo,
		ContactID:       sale.ContactID,
		Status:          string(sale.Status),
		PaymentStatus:   string(sale.PaymentStatus),
		FinalTotal:      domain.FormatAmount(sale.FinalTotal),
		TransactionDate: formatTimestamp(sale.TransactionDate),
		Replayed:        replayed,
	}
}

// writeOrderSyncError maps sync failures onto distinct HTTP statuses so
// integrators never have to dig business errors out of a 200 body.
func writeOrderSyncError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var mappingErr *services.OrderMappingError
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &mappingErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_product_not_found", "order references a product this business does not sell", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{
				"order_number": mappingErr.OrderNumber,
				"product":      mappingErr.Product,
			}))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_insuficient_product_qty", "ordered quantity exceeds available stock", http.StatusConflict).
			WithDetails(map[string]any{
				"order_number": stockErr.OrderNumber,
				"product":      stockErr.Product,
			}))
	case errors.Is(err, services.ErrSaleInvalidInput), errors.Is(err, services.ErrContactInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimSpace(err.Error()), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_sync_error", "failed to process order delivery", http.StatusInternalServerError))
	}
}
