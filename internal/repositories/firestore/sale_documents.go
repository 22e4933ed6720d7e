package firestore

import (
	"strings"
	"time"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/platform/pagination"
)

type saleDocument struct {
	BusinessID      string            `firestore:"businessId"`
	LocationID      string            `firestore:"locationId"`
	ContactID       string            `firestore:"contactId"`
	Status          string            `firestore:"status"`
	PaymentStatus   string            `firestore:"paymentStatus"`
	ShippingStatus  string            `firestore:"shippingStatus,omitempty"`
	IsQuotation     bool              `firestore:"isQuotation"`
	Source          string            `firestore:"source"`
	InvoiceNo       string            `firestore:"invoiceNo"`
	DiscountType    string            `firestore:"discountType,omitempty"`
	DiscountAmount  int64             `firestore:"discountAmount"`
	ShippingCharges int64             `firestore:"shippingCharges"`
	ShippingDetails string            `firestore:"shippingDetails,omitempty"`
	ShippingAddress string            `firestore:"shippingAddress,omitempty"`
	FinalTotal      int64             `firestore:"finalTotal"`
	SaleNote        string            `firestore:"saleNote,omitempty"`
	StaffNote       string            `firestore:"staffNote,omitempty"`
	OrderAddresses  string            `firestore:"orderAddresses,omitempty"`
	CustomerGroupID string            `firestore:"customerGroupId,omitempty"`
	TransactionDate time.Time         `firestore:"transactionDate"`
	CreatedBy       string            `firestore:"createdBy,omitempty"`
	Lines           []lineDocument    `firestore:"lines"`
	Payments        []paymentDocument `firestore:"payments"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

type lineDocument struct {
	ID              string `firestore:"id"`
	ProductID       string `firestore:"productId"`
	VariationID     string `firestore:"variationId"`
	Quantity        int    `firestore:"qty"`
	UnitPrice       int64  `firestore:"unitPrice"`
	UnitPriceIncTax int64  `firestore:"unitPriceIncTax"`
	ItemTax         int64  `firestore:"itemTax"`
	EnableStock     bool   `firestore:"enableStock"`
	ExternalLineID  string `firestore:"externalLineId,omitempty"`
}

type paymentDocument struct {
	ID     string    `firestore:"id"`
	Amount int64     `firestore:"amount"`
	Method string    `firestore:"method"`
	Note   string    `firestore:"note,omitempty"`
	PaidOn time.Time `firestore:"paidOn"`
}

type stockDocument struct {
	VariationID string    `firestore:"variationId"`
	ProductID   string    `firestore:"productId"`
	LocationID  string    `firestore:"locationId"`
	OnHand      int       `firestore:"onHand"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (s stockDocument) toDomain(_ string) domain.StockLevel {
	return domain.StockLevel{
		VariationID: s.VariationID,
		ProductID:   s.ProductID,
		LocationID:  s.LocationID,
		OnHand:      s.OnHand,
		UpdatedAt:   s.UpdatedAt,
	}
}

type lotDocument struct {
	BusinessID  string    `firestore:"businessId"`
	LocationID  string    `firestore:"locationId"`
	ProductID   string    `firestore:"productId"`
	VariationID string    `firestore:"variationId"`
	Quantity    int       `firestore:"qty"`
	Remaining   int       `firestore:"remaining"`
	ReceivedAt  time.Time `firestore:"receivedAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// allocationDocument records which purchase lot costed a sale line. Rows are
// keyed by (sale, lot, line) so re-delivery overwrites instead of duplicating.
type allocationDocument struct {
	SaleID     string    `firestore:"saleId"`
	BusinessID string    `firestore:"businessId"`
	SaleLineID string    `firestore:"saleLineId"`
	LotID      string    `firestore:"lotId"`
	Quantity   int       `firestore:"qty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func newAllocationDocument(saleID, businessID string, alloc domain.LotAllocation, now time.Time) allocationDocument {
	return allocationDocument{
		SaleID:     saleID,
		BusinessID: businessID,
		SaleLineID: alloc.SaleLineID,
		LotID:      alloc.LotID,
		Quantity:   alloc.Quantity,
		CreatedAt:  now,
	}
}

func allocationDocID(saleID string, alloc domain.LotAllocation) string {
	return saleID + "__" + alloc.LotID + "__" + alloc.SaleLineID
}

func (l lotDocument) toDomain(id string) domain.PurchaseLot {
	return domain.PurchaseLot{
		ID:          id,
		BusinessID:  l.BusinessID,
		LocationID:  l.LocationID,
		ProductID:   l.ProductID,
		VariationID: l.VariationID,
		Quantity:    l.Quantity,
		Remaining:   l.Remaining,
		ReceivedAt:  l.ReceivedAt,
	}
}

func newSaleDocument(sale domain.Sale, now time.Time) saleDocument {
	lines := make([]lineDocument, len(sale.Lines))
	for i, line := range sale.Lines {
		lines[i] = lineDocument{
			ID:              line.ID,
			ProductID:       line.ProductID,
			VariationID:     line.VariationID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			UnitPriceIncTax: line.UnitPriceIncTax,
			ItemTax:         line.ItemTax,
			EnableStock:     line.EnableStock,
			ExternalLineID:  line.ExternalLineID,
		}
	}
	payments := make([]paymentDocument, len(sale.Payments))
	for i, pay := range sale.Payments {
		payments[i] = paymentDocument{
			ID:     pay.ID,
			Amount: pay.Amount,
			Method: strings.TrimSpace(pay.Method),
			Note:   strings.TrimSpace(pay.Note),
			PaidOn: pay.PaidOn.UTC(),
		}
	}
	createdAt := sale.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return saleDocument{
		BusinessID:      strings.TrimSpace(sale.BusinessID),
		LocationID:      strings.TrimSpace(sale.LocationID),
		ContactID:       strings.TrimSpace(sale.ContactID),
		Status:          string(sale.Status),
		PaymentStatus:   string(sale.PaymentStatus),
		ShippingStatus:  string(sale.ShippingStatus),
		IsQuotation:     sale.IsQuotation,
		Source:          sale.Source,
		InvoiceNo:       strings.TrimSpace(sale.InvoiceNo),
		DiscountType:    sale.DiscountType,
		DiscountAmount:  sale.DiscountAmount,
		ShippingCharges: sale.ShippingCharges,
		ShippingDetails: sale.ShippingDetails,
		ShippingAddress: sale.ShippingAddress,
		FinalTotal:      sale.FinalTotal,
		SaleNote:        sale.SaleNote,
		StaffNote:       sale.StaffNote,
		OrderAddresses:  sale.OrderAddresses,
		CustomerGroupID: sale.CustomerGroupID,
		TransactionDate: sale.TransactionDate.UTC(),
		CreatedBy:       sale.CreatedBy,
		Lines:           lines,
		Payments:        payments,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}
}

func (d saleDocument) toDomain(id string) domain.Sale {
	lines := make([]domain.SaleLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.SaleLine{
			ID:              line.ID,
			ProductID:       line.ProductID,
			VariationID:     line.VariationID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			UnitPriceIncTax: line.UnitPriceIncTax,
			ItemTax:         line.ItemTax,
			EnableStock:     line.EnableStock,
			ExternalLineID:  line.ExternalLineID,
		}
	}
	payments := make([]domain.PaymentLine, len(d.Payments))
	for i, pay := range d.Payments {
		payments[i] = domain.PaymentLine{
			ID:     pay.ID,
			Amount: pay.Amount,
			Method: pay.Method,
			Note:   pay.Note,
			PaidOn: pay.PaidOn,
		}
	}
	return domain.Sale{
		ID:              id,
		BusinessID:      d.BusinessID,
		LocationID:      d.LocationID,
		ContactID:       d.ContactID,
		Status:          domain.SaleStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		ShippingStatus:  domain.ShippingStatus(d.ShippingStatus),
		IsQuotation:     d.IsQuotation,
		Source:          d.Source,
		InvoiceNo:       d.InvoiceNo,
		DiscountType:    d.DiscountType,
		DiscountAmount:  d.DiscountAmount,
		ShippingCharges: d.ShippingCharges,
		ShippingDetails: d.ShippingDetails,
		ShippingAddress: d.ShippingAddress,
		FinalTotal:      d.FinalTotal,
		SaleNote:        d.SaleNote,
		StaffNote:       d.StaffNote,
		OrderAddresses:  d.OrderAddresses,
		CustomerGroupID: d.CustomerGroupID,
		TransactionDate: d.TransactionDate,
		CreatedBy:       d.CreatedBy,
		Lines:           lines,
		Payments:        payments,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type saleCursor struct {
	ID              string    `json:"id"`
	TransactionDate time.Time `json:"transactionDate"`
}

func encodeSaleCursor(cursor saleCursor) (string, error) {
	return pagination.EncodeToken(cursor)
}

func decodeSaleCursor(encoded string) (saleCursor, error) {
	return pagination.DecodeToken[saleCursor](encoded)
}
