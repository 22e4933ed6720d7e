package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/poslink/api/internal/domain"
	pfirestore "github.com/poslink/api/internal/platform/firestore"
)

// StockRepository reads stock levels and purchase lots outside the sale
// transaction.
type StockRepository struct {
	stocks *pfirestore.BaseRepository[stockDocument]
	lots   *pfirestore.BaseRepository[lotDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	return &StockRepository{
		stocks: pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil, nil),
		lots:   pfirestore.NewBaseRepository[lotDocument](provider, lotsCollection, nil, nil),
	}, nil
}

// GetLevel returns the on-hand level for a variation at a location.
func (r *StockRepository) GetLevel(ctx context.Context, variationID, locationID string) (domain.StockLevel, error) {
	if r == nil || r.stocks == nil {
		return domain.StockLevel{}, errors.New("stock repository not initialised")
	}
	variationID = strings.TrimSpace(variationID)
	locationID = strings.TrimSpace(locationID)
	if variationID == "" || locationID == "" {
		return domain.StockLevel{}, errors.New("variation id and location id are required")
	}

	doc, err := r.stocks.Get(ctx, stockDocID(variationID, locationID))
	if err != nil {
		return domain.StockLevel{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListLots returns the purchase lots for a variation at a location that still
// have quantity available, oldest first.
func (r *StockRepository) ListLots(ctx context.Context, businessID, variationID, locationID string) ([]domain.PurchaseLot, error) {
	if r == nil || r.lots == nil {
		return nil, errors.New("stock repository not initialised")
	}

	docs, err := r.lots.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("businessId", "==", strings.TrimSpace(businessID)).
			Where("variationId", "==", strings.TrimSpace(variationID)).
			Where("locationId", "==", strings.TrimSpace(locationID)).
			OrderBy("receivedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	lots := make([]domain.PurchaseLot, 0, len(docs))
	for _, doc := range docs {
		lots = append(lots, doc.Data.toDomain(doc.ID))
	}
	return lots, nil
}
