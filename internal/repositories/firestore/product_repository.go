package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/poslink/api/internal/domain"
	pfirestore "github.com/poslink/api/internal/platform/firestore"
)

func notFoundStatus(message string) error {
	return status.Error(codes.NotFound, message)
}

const productsCollection = "products"

type productDocument struct {
	BusinessID  string              `firestore:"businessId"`
	Name        string              `firestore:"name"`
	SKU         string              `firestore:"sku,omitempty"`
	EnableStock bool                `firestore:"enableStock"`
	Variations  []variationDocument `firestore:"variations"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
}

type variationDocument struct {
	ID           string `firestore:"id"`
	Name         string `firestore:"name,omitempty"`
	SubSKU       string `firestore:"subSku,omitempty"`
	SellPrice    int64  `firestore:"sellPrice"`
	SellPriceInc int64  `firestore:"sellPriceInc"`
}

func (d productDocument) toDomain(id string) domain.Product {
	variations := make([]domain.Variation, len(d.Variations))
	for i, v := range d.Variations {
		variations[i] = domain.Variation{
			ID:           v.ID,
			ProductID:    id,
			Name:         v.Name,
			SubSKU:       v.SubSKU,
			SellPrice:    v.SellPrice,
			SellPriceInc: v.SellPriceInc,
		}
	}
	return domain.Product{
		ID:          id,
		BusinessID:  d.BusinessID,
		Name:        d.Name,
		SKU:         d.SKU,
		EnableStock: d.EnableStock,
		Variations:  variations,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ProductRepository resolves catalog products from Firestore.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{products: base}, nil
}

// FindForBusiness loads the product with its variations. A product belonging
// to a different business reports not found rather than leaking its
// existence.
func (r *ProductRepository) FindForBusiness(ctx context.Context, businessID, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	businessID = strings.TrimSpace(businessID)
	productID = strings.TrimSpace(productID)
	if businessID == "" || productID == "" {
		return domain.Product{}, errors.New("business id and product id are required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if doc.Data.BusinessID != businessID {
		return domain.Product{}, pfirestore.WrapError("products.get", notFoundStatus(fmt.Sprintf("product %s not found", productID)))
	}
	return doc.Data.toDomain(doc.ID), nil
}
