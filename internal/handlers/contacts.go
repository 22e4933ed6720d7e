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

const (
	maxContactBodySize     = 64 * 1024
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// ContactHandlers exposes contact creation and phone-based order lookups.
type ContactHandlers struct {
	authn    *auth.Authenticator
	contacts services.ContactService
	sales    services.SaleService
}

// NewContactHandlers constructs a new ContactHandlers instance.
func NewContactHandlers(authn *auth.Authenticator, contacts services.ContactService, sales services.SaleService) *ContactHandlers {
	return &ContactHandlers{
		authn:    authn,
		contacts: contacts,
		sales:    sales,
	}
}

// Routes registers the contact endpoints against the API root so both the
// /contacts group and the /contacts:orders lookup share one registrar.
func (h *ContactHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireAuth())
		}
		group.Post("/contacts", h.createContact)
		group.Post("/contacts:orders", h.contactOrders)
	})
}

type createContactRequest struct {
	BusinessID string `json:"business_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Mobile     string `json:"mobile"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	ZipCode    string `json:"zip_code"`
}

type createContactResponse struct {
	Success   bool   `json:"success"`
	ContactID string `json:"contact_id"`
	Msg       string `json:"msg"`
}

func (h *ContactHandlers) createContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contacts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createContactRequest
	if err := decodeJSONBody(r, &req, maxContactBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	businessID, createdBy := requestScope(ctx, req.BusinessID)
	resolution, err := h.contacts.CreateContact(ctx, services.CreateContactCommand{
		BusinessID: businessID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Mobile:     req.Mobile,
		Address1:   req.Address1,
		Address2:   req.Address2,
		City:       req.City,
		State:      req.State,
		Country:    req.Country,
		ZipCode:    req.ZipCode,
		CreatedBy:  createdBy,
	})
	if err != nil {
		writeContactError(ctx, w, err)
		return
	}

	msg := "contact already exists"
	status := http.StatusOK
	if resolution.Created {
		msg = "contact created"
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, createContactResponse{
		Success:   true,
		ContactID: resolution.Contact.ID,
		Msg:       msg,
	})
}

type contactOrdersRequest struct {
	BusinessID string `json:"business_id"`
	Phone      string `json:"phone"`
	PageSize   int    `json:"page_size"`
	PageToken  string `json:"page_token"`
}

type contactOrdersResponse struct {
	Contact       contactPayload        `json:"contact"`
	Orders        []orderSummaryPayload `json:"orders"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type contactPayload struct {
	ID          string `json:"id"`
	ContactCode string `json:"contact_code"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Mobile      string `json:"mobile"`
}

type orderSummaryPayload struct {
	ID              string `json:"id"`
	InvoiceNo       string `json:"invoice_no"`
	TransactionDate string `json:"transaction_date"`
	FinalTotal      string `json:"final_total"`
	PaymentStatus   string `json:"payment_status"`
	Status          string `json:"status"`
}

func (h *ContactHandlers) contactOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sale_service_unavailable", "sale service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req contactOrdersRequest
	if err := decodeJSONBody(r, &req, maxContactBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	pageSize := req.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultHistoryPageSize
	case pageSize > maxHistoryPageSize:
		pageSize = maxHistoryPageSize
	}

	businessID, _ := requestScope(ctx, req.BusinessID)
	history, err := h.sales.OrdersByPhone(ctx, services.ContactOrdersQuery{
		BusinessID: businessID,
		Phone:      req.Phone,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(req.PageToken),
		},
	})
	if err != nil {
		writeContactError(ctx, w, err)
		return
	}

	orders := make([]orderSummaryPayload, 0, len(history.Orders.Items))
	for _, summary := range history.Orders.Items {
		orders = append(orders, buildOrderSummary(summary))
	}

	writeJSONResponse(w, http.StatusOK, contactOrdersResponse{
		Contact: contactPayload{
			ID:          history.Contact.ID,
			ContactCode: history.Contact.ContactCode,
			Name:        history.Contact.Name,
			Email:       history.Contact.Email,
			Mobile:      history.Contact.Mobile,
		},
		Orders:        orders,
		NextPageToken: strings.TrimSpace(history.Orders.NextPageToken),
	})
}

func buildOrderSummary(summary services.SaleSummary) orderSummaryPayload {
	return orderSummaryPayload{
		ID:              summary.ID,
		InvoiceNo:       summary.InvoiceNo,
		TransactionDate: formatTimestamp(summary.TransactionDate),
		FinalTotal:      domain.FormatAmount(summary.FinalTotal),
		PaymentStatus:   string(summary.PaymentStatus),
		Status:          string(summary.Status),
	}
}

// requestScope derives the business scope and actor from the authenticated
// identity, falling back to the value supplied in the request body.
func requestScope(ctx context.Context, bodyBusinessID string) (businessID, actor string) {
	businessID = strings.TrimSpace(bodyBusinessID)
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		if identity.BusinessID != "" {
			businessID = identity.BusinessID
		}
		actor = identity.UserID
	}
	return businessID, actor
}

func writeContactError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrContactInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimSpace(err.Error()), http.StatusBadRequest))
	case errors.Is(err, services.ErrContactNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("contact_not_found", "no customer matches this phone number", http.StatusNotFound))
	case errors.Is(err, services.ErrContactConflict):
		httpx.WriteError(ctx, w, httpx.NewError("contact_conflict", "a contact with this mobile number already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("contact_error", "failed to process contact request", http.StatusInternalServerError))
	}
}
