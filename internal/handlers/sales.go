package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/platform/auth"
	"github.com/poslink/api/internal/platform/httpx"
	"github.com/poslink/api/internal/services"
)

// SaleHandlers exposes staff-facing sale lookups.
type SaleHandlers struct {
	authn *auth.Authenticator
	sales services.SaleService
}

// NewSaleHandlers constructs a new SaleHandlers instance.
func NewSaleHandlers(authn *auth.Authenticator, sales services.SaleService) *SaleHandlers {
	return &SaleHandlers{
		authn: authn,
		sales: sales,
	}
}

// Routes registers the /sales endpoints.
func (h *SaleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.findByInvoice)
}

type saleDetailResponse struct {
	Sale saleDetailPayload `json:"sale"`
}

type saleDetailPayload struct {
	salePayload
	LocationID      string               `json:"location_id"`
	Source          string               `json:"source"`
	DiscountAmount  string               `json:"discount_amount"`
	ShippingCharges string               `json:"shipping_charges"`
	ShippingDetails string               `json:"shipping_details,omitempty"`
	StaffNote       string               `json:"staff_note,omitempty"`
	Lines           []saleLinePayload    `json:"lines"`
	Payments        []salePaymentPayload `json:"payments"`
}

type saleLinePayload struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	VariationID     string `json:"variation_id"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	UnitPriceIncTax string `json:"unit_price_inc_tax"`
	ItemTax         string `json:"item_tax"`
}

type salePaymentPayload struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
	Method string `json:"method"`
	Note   string `json:"note,omitempty"`
	PaidOn string `json:"paid_on"`
}

func (h *SaleHandlers) findByInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sale_service_unavailable", "sale service unavailable", http.StatusServiceUnavailable))
		return
	}

	invoiceNo := strings.TrimSpace(r.URL.Query().Get("invoice_no"))
	if invoiceNo == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice_no query parameter is required", http.StatusBadRequest))
		return
	}

	businessID, _ := requestScope(ctx, r.URL.Query().Get("business_id"))
	sale, err := h.sales.FindByInvoiceNo(ctx, businessID, invoiceNo)
	if err != nil {
		writeSaleError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, saleDetailResponse{Sale: buildSaleDetail(sale)})
}

func buildSaleDetail(sale services.Sale) saleDetailPayload {
	lines := make([]saleLinePayload, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, saleLinePayload{
			ID:              line.ID,
			ProductID:       line.ProductID,
			VariationID:     line.VariationID,
			Quantity:        line.Quantity,
			UnitPrice:       domain.FormatAmount(line.UnitPrice),
			UnitPriceIncTax: domain.FormatAmount(line.UnitPriceIncTax),
			ItemTax:         domain.FormatAmount(line.ItemTax),
		})
	}

	payments := make([]salePaymentPayload, 0, len(sale.Payments))
	for _, payment := range sale.Payments {
		payments = append(payments, salePaymentPayload{
			ID:     payment.ID,
			Amount: domain.FormatAmount(payment.Amount),
			Method: payment.Method,
			Note:   payment.Note,
			PaidOn: formatTimestamp(payment.PaidOn),
		})
	}

	return saleDetailPayload{
		salePayload:     buildSalePayload(sale, false),
		LocationID:      sale.LocationID,
		Source:          sale.Source,
		DiscountAmount:  domain.FormatAmount(sale.DiscountAmount),
		ShippingCharges: domain.FormatAmount(sale.ShippingCharges),
		ShippingDetails: sale.ShippingDetails,
		StaffNote:       sale.StaffNote,
		Lines:           lines,
		Payments:        payments,
	}
}

func writeSaleError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSaleInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimSpace(err.Error()), http.StatusBadRequest))
	case errors.Is(err, services.ErrSaleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sale_not_found", "no sale matches this invoice number", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("sale_error", "failed to process sale request", http.StatusInternalServerError))
	}
}
