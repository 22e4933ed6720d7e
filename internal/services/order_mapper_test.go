package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/poslink/api/internal/domain"
)

type stubProductRepository struct {
	products map[string]domain.Product
	findErr  error
	calls    int
}

func (s *stubProductRepository) FindForBusiness(_ context.Context, _, productID string) (domain.Product, error) {
	s.calls++
	if s.findErr != nil {
		return domain.Product{}, s.findErr
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, &stubRepoError{notFound: true}
	}
	return product, nil
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func newTestMapper(t *testing.T, repo *stubProductRepository, fallback string) *LineMapper {
	t.Helper()
	mapper, err := NewLineMapper(LineMapperDeps{
		Products:          repo,
		MetadataKey:       "pos_product_id",
		FallbackProductID: fallback,
	})
	if err != nil {
		t.Fatalf("new line mapper: %v", err)
	}
	return mapper
}

func catalogProduct() domain.Product {
	return domain.Product{
		ID:          "prd_1",
		BusinessID:  "biz_1",
		Name:        "Premium Plan",
		SKU:         "PP-01",
		EnableStock: true,
		Variations: []domain.Variation{
			{ID: "var_1", ProductID: "prd_1", SubSKU: "PP-01-A"},
			{ID: "var_2", ProductID: "prd_1", SubSKU: "PP-01-B"},
		},
	}
}

func TestLineMapperComputesUnitAmounts(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{"prd_1": catalogProduct()}}
	mapper := newTestMapper(t, repo, "")

	mapped, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1001",
		LineItems: []domain.OrderLineItem{{
			ID:       501,
			Name:     "Premium Plan",
			SKU:      "PP-01",
			Quantity: 2,
			Total:    "20.00",
			TotalTax: "2.00",
			Metadata: []domain.OrderMetaDatum{{Key: "pos_product_id", Value: "prd_1"}},
		}},
	})
	if err != nil {
		t.Fatalf("map lines: %v", err)
	}

	if len(mapped.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(mapped.Lines))
	}
	line := mapped.Lines[0]
	if line.UnitPrice != 1000 {
		t.Fatalf("expected unit price 1000, got %d", line.UnitPrice)
	}
	if line.ItemTax != 100 {
		t.Fatalf("expected unit tax 100, got %d", line.ItemTax)
	}
	if line.UnitPriceIncTax != 1100 {
		t.Fatalf("expected inc-tax unit 1100, got %d", line.UnitPriceIncTax)
	}
	if line.VariationID != "var_1" {
		t.Fatalf("expected first variation, got %s", line.VariationID)
	}
	if !line.EnableStock {
		t.Fatalf("expected stock-tracked line")
	}
	if line.ExternalLineID != "501" {
		t.Fatalf("expected external line id 501, got %s", line.ExternalLineID)
	}
	if mapped.Labels["var_1"] != "Premium Plan SKU:PP-01" {
		t.Fatalf("unexpected label: %q", mapped.Labels["var_1"])
	}
}

func TestLineMapperUnmatchedProductReturnsStructuredError(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{}}
	mapper := newTestMapper(t, repo, "")

	_, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1002",
		LineItems: []domain.OrderLineItem{{
			ID:       502,
			Name:     "Ghost Item",
			SKU:      "GH-01",
			Quantity: 1,
			Total:    "5.00",
			TotalTax: "0",
			Metadata: []domain.OrderMetaDatum{{Key: "pos_product_id", Value: "prd_missing"}},
		}},
	})

	var mappingErr *OrderMappingError
	if !errors.As(err, &mappingErr) {
		t.Fatalf("expected OrderMappingError, got %v", err)
	}
	if mappingErr.OrderNumber != "1002" {
		t.Fatalf("expected order number 1002, got %s", mappingErr.OrderNumber)
	}
	if mappingErr.Product != "Ghost Item SKU:GH-01" {
		t.Fatalf("unexpected product label: %q", mappingErr.Product)
	}
}

func TestLineMapperMissingMappingUsesFallback(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{"prd_fallback": {
		ID:         "prd_fallback",
		BusinessID: "biz_1",
		Name:       "Generic Item",
		Variations: []domain.Variation{{ID: "var_gen"}},
	}}}
	mapper := newTestMapper(t, repo, "prd_fallback")

	mapped, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1003",
		LineItems: []domain.OrderLineItem{{
			ID:       503,
			Name:     "Unmapped",
			Quantity: 1,
			Total:    "3.00",
			TotalTax: "0",
		}},
	})
	if err != nil {
		t.Fatalf("map lines: %v", err)
	}
	if mapped.Lines[0].ProductID != "prd_fallback" {
		t.Fatalf("expected fallback product, got %s", mapped.Lines[0].ProductID)
	}
}

func TestLineMapperNoMappingAndNoFallbackFails(t *testing.T) {
	mapper := newTestMapper(t, &stubProductRepository{}, "")

	_, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1004",
		LineItems: []domain.OrderLineItem{{
			ID:       504,
			Name:     "Unmapped",
			Quantity: 1,
			Total:    "3.00",
			TotalTax: "0",
		}},
	})

	var mappingErr *OrderMappingError
	if !errors.As(err, &mappingErr) {
		t.Fatalf("expected OrderMappingError, got %v", err)
	}
}

func TestLineMapperProductWithoutVariationFails(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{"prd_1": {
		ID:         "prd_1",
		BusinessID: "biz_1",
		Name:       "Bare Product",
		SKU:        "BP-01",
	}}}
	mapper := newTestMapper(t, repo, "")

	_, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1005",
		LineItems: []domain.OrderLineItem{{
			ID:       505,
			Name:     "Bare Product",
			SKU:      "BP-01",
			Quantity: 1,
			Total:    "1.00",
			TotalTax: "0",
			Metadata: []domain.OrderMetaDatum{{Key: "pos_product_id", Value: "prd_1"}},
		}},
	})

	var mappingErr *OrderMappingError
	if !errors.As(err, &mappingErr) {
		t.Fatalf("expected OrderMappingError, got %v", err)
	}
	if mappingErr.Reason != "product has no variation" {
		t.Fatalf("unexpected reason: %q", mappingErr.Reason)
	}
}

func TestLineMapperCachesProductLookups(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{"prd_1": catalogProduct()}}
	mapper := newTestMapper(t, repo, "")

	meta := []domain.OrderMetaDatum{{Key: "pos_product_id", Value: "prd_1"}}
	_, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1006",
		LineItems: []domain.OrderLineItem{
			{ID: 506, Name: "Premium Plan", Quantity: 1, Total: "10.00", TotalTax: "0", Metadata: meta},
			{ID: 507, Name: "Premium Plan", Quantity: 1, Total: "10.00", TotalTax: "0", Metadata: meta},
		},
	})
	if err != nil {
		t.Fatalf("map lines: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one catalog lookup, got %d", repo.calls)
	}
}

func TestLineMapperCollectsSanitizedStaffNote(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{"prd_1": catalogProduct()}}
	mapper := newTestMapper(t, repo, "")

	mapped, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1007",
		LineItems: []domain.OrderLineItem{{
			ID:       508,
			Name:     "Premium Plan",
			SKU:      "PP-01",
			Quantity: 1,
			Total:    "10.00",
			TotalTax: "0",
			Metadata: []domain.OrderMetaDatum{
				{Key: "pos_product_id", Value: "prd_1"},
				{Key: "account_email", Value: "  buyer@example.com "},
				{Key: "account_password", Value: "<b>hunter2</b>"},
				{Key: "_internal", Value: "skipped"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("map lines: %v", err)
	}

	if !strings.Contains(mapped.StaffNote, "account_email: buyer@example.com") {
		t.Fatalf("expected email attribute in note, got %q", mapped.StaffNote)
	}
	if !strings.Contains(mapped.StaffNote, "account_password: hunter2") {
		t.Fatalf("expected sanitized password attribute, got %q", mapped.StaffNote)
	}
	if strings.Contains(mapped.StaffNote, "<b>") {
		t.Fatalf("expected markup stripped, got %q", mapped.StaffNote)
	}
	if strings.Contains(mapped.StaffNote, "_internal") {
		t.Fatalf("expected internal keys skipped, got %q", mapped.StaffNote)
	}
}

func TestLineMapperRejectsNonPositiveQuantity(t *testing.T) {
	mapper := newTestMapper(t, &stubProductRepository{}, "")

	_, err := mapper.MapLines(context.Background(), "biz_1", domain.OrderPayload{
		Number: "1008",
		LineItems: []domain.OrderLineItem{{
			ID:       509,
			Name:     "Premium Plan",
			Quantity: 0,
			Total:    "10.00",
			TotalTax: "0",
		}},
	})
	if !errors.Is(err, ErrSaleInvalidInput) {
		t.Fatalf("expected ErrSaleInvalidInput, got %v", err)
	}
}
