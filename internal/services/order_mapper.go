package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/poslink/api/internal/domain"
	"github.com/poslink/api/internal/repositories"
)

// OrderMappingError reports an order line that could not be matched against
// the catalog. The whole order is rejected; no partial sale is persisted.
type OrderMappingError struct {
	OrderNumber string
	// Product is the operator-facing "name SKU:sku" label of the offending line.
	Product string
	Reason  string
}

func (e *OrderMappingError) Error() string {
	return fmt.Sprintf("order %s: product %s: %s", e.OrderNumber, e.Product, e.Reason)
}

// LineMapperDeps bundles collaborators required to construct a line mapper.
type LineMapperDeps struct {
	Products repositories.ProductRepository

	// MetadataKey is the line metadata key carrying the catalog product ID.
	MetadataKey string
	// FallbackProductID resolves lines whose metadata omits the key. Empty
	// means unmapped lines fail.
	FallbackProductID string

	Sanitizer func(string) string
}

// LineMapper translates storefront order line items into sale lines. Mapping
// is all-or-nothing: the first unmatched product aborts with an
// OrderMappingError.
type LineMapper struct {
	products          repositories.ProductRepository
	metadataKey       string
	fallbackProductID string
	sanitize          func(string) string
}

// MappedLines is the mapper output consumed by the sale assembler.
type MappedLines struct {
	Lines []SaleLine
	// Labels maps variation IDs to "name SKU:sku" labels for stock errors.
	Labels map[string]string
	// StaffNote aggregates sanitized custom line attributes.
	StaffNote string
}

// NewLineMapper constructs a LineMapper.
func NewLineMapper(deps LineMapperDeps) (*LineMapper, error) {
	if deps.Products == nil {
		return nil, errors.New("line mapper: product repository is required")
	}
	metadataKey := strings.TrimSpace(deps.MetadataKey)
	if metadataKey == "" {
		return nil, errors.New("line mapper: metadata key is required")
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeNoteText
	}
	return &LineMapper{
		products:          deps.Products,
		metadataKey:       metadataKey,
		fallbackProductID: strings.TrimSpace(deps.FallbackProductID),
		sanitize:          sanitize,
	}, nil
}

// MapLines resolves every order line against the catalog and computes
// per-unit amounts from the line totals.
func (m *LineMapper) MapLines(ctx context.Context, businessID string, order OrderPayload) (MappedLines, error) {
	if len(order.LineItems) == 0 {
		return MappedLines{}, fmt.Errorf("%w: order has no line items", ErrSaleInvalidInput)
	}

	mapped := MappedLines{
		Lines:  make([]SaleLine, 0, len(order.LineItems)),
		Labels: make(map[string]string, len(order.LineItems)),
	}
	products := make(map[string]domain.Product)
	var noteParts []string

	for _, item := range order.LineItems {
		label := lineLabel(item)
		if item.Quantity <= 0 {
			return MappedLines{}, fmt.Errorf("%w: line %s has non-positive quantity", ErrSaleInvalidInput, label)
		}

		productID := m.resolveProductID(item)
		if productID == "" {
			return MappedLines{}, &OrderMappingError{
				OrderNumber: order.Number,
				Product:     label,
				Reason:      "no catalog mapping",
			}
		}

		product, ok := products[productID]
		if !ok {
			var err error
			product, err = m.products.FindForBusiness(ctx, businessID, productID)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					return MappedLines{}, &OrderMappingError{
						OrderNumber: order.Number,
						Product:     label,
						Reason:      "not found in catalog",
					}
				}
				return MappedLines{}, fmt.Errorf("resolve product %s: %w", productID, err)
			}
			products[productID] = product
		}

		if len(product.Variations) == 0 {
			return MappedLines{}, &OrderMappingError{
				OrderNumber: order.Number,
				Product:     label,
				Reason:      "product has no variation",
			}
		}
		variation := product.Variations[0]

		total, err := domain.ParseAmount(item.Total)
		if err != nil {
			return MappedLines{}, fmt.Errorf("%w: line %s total: %v", ErrSaleInvalidInput, label, err)
		}
		tax, err := domain.ParseAmount(item.TotalTax)
		if err != nil {
			return MappedLines{}, fmt.Errorf("%w: line %s tax: %v", ErrSaleInvalidInput, label, err)
		}

		unitPrice := domain.UnitAmount(total, item.Quantity)
		unitTax := domain.UnitAmount(tax, item.Quantity)

		mapped.Lines = append(mapped.Lines, SaleLine{
			ProductID:       product.ID,
			VariationID:     variation.ID,
			Quantity:        item.Quantity,
			UnitPrice:       unitPrice,
			UnitPriceIncTax: unitPrice + unitTax,
			ItemTax:         unitTax,
			EnableStock:     product.EnableStock,
			ExternalLineID:  strconv.FormatInt(item.ID, 10),
		})
		mapped.Labels[variation.ID] = label

		noteParts = append(noteParts, m.collectNoteParts(item)...)
	}

	mapped.StaffNote = m.sanitize(strings.Join(noteParts, "\n"))
	return mapped, nil
}

func (m *LineMapper) resolveProductID(item OrderLineItem) string {
	for _, meta := range item.Metadata {
		if meta.Key != m.metadataKey {
			continue
		}
		if id := strings.TrimSpace(fmt.Sprint(meta.Value)); id != "" && id != "<nil>" {
			return id
		}
	}
	return m.fallbackProductID
}

// collectNoteParts gathers custom line attributes (bundled account
// credentials and similar) for the staff note. Internal keys and the product
// mapping key are skipped.
func (m *LineMapper) collectNoteParts(item OrderLineItem) []string {
	var parts []string
	for _, meta := range item.Metadata {
		key := strings.TrimSpace(meta.Key)
		if key == "" || key == m.metadataKey || strings.HasPrefix(key, "_") {
			continue
		}
		value := strings.TrimSpace(fmt.Sprint(meta.Value))
		if value == "" || value == "<nil>" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s: %s", item.Name, key, value))
	}
	return parts
}

func lineLabel(item OrderLineItem) string {
	return strings.TrimSpace(item.Name) + " SKU:" + strings.TrimSpace(item.SKU)
}

var noteSanitizerPolicy = bluemonday.StrictPolicy()

// sanitizeNoteText strips markup and control characters from untrusted order
// metadata before it is stored as a staff note.
func sanitizeNoteText(value string) string {
	stripped := html.UnescapeString(noteSanitizerPolicy.Sanitize(value))
	stripped = strings.ReplaceAll(stripped, "\r\n", "\n")
	stripped = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)

	lines := strings.Split(stripped, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
