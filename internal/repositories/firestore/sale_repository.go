package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/poslink/api/internal/domain"
	pfirestore "github.com/poslink/api/internal/platform/firestore"
	"github.com/poslink/api/internal/repositories"
)

const (
	salesCollection       = "sales"
	stocksCollection      = "stocks"
	lotsCollection        = "purchaseLots"
	allocationsCollection = "lotAllocations"
)

// SaleRepository persists sale transactions in Firestore. PersistSale commits
// the sale header, lines, payment, stock movement, and lot allocations in a
// single transaction.
type SaleRepository struct {
	provider    *pfirestore.Provider
	sales       *pfirestore.BaseRepository[saleDocument]
	stocks      *pfirestore.BaseRepository[stockDocument]
	lots        *pfirestore.BaseRepository[lotDocument]
	allocations *pfirestore.BaseRepository[allocationDocument]
}

// NewSaleRepository constructs a Firestore-backed sale repository.
func NewSaleRepository(provider *pfirestore.Provider) (*SaleRepository, error) {
	if provider == nil {
		return nil, errors.New("sale repository requires firestore provider")
	}
	return &SaleRepository{
		provider:    provider,
		sales:       pfirestore.NewBaseRepository[saleDocument](provider, salesCollection, nil, nil),
		stocks:      pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil, nil),
		lots:        pfirestore.NewBaseRepository[lotDocument](provider, lotsCollection, nil, nil),
		allocations: pfirestore.NewBaseRepository[allocationDocument](provider, allocationsCollection, nil, nil),
	}, nil
}

// PersistSale upserts the sale under its deterministic document ID. When
// Finalize is set and the stored sale was not already final, each
// stock-tracked line decrements the variation's stock level at the sale
// location and drains purchase lots oldest first. A lot shortfall aborts the
// transaction with SaleErrorInsufficientStock so no partial state commits.
func (r *SaleRepository) PersistSale(ctx context.Context, req repositories.PersistSaleRequest) (repositories.PersistSaleResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PersistSaleResult{}, errors.New("sale repository not initialised")
	}
	sale := req.Sale
	if strings.TrimSpace(sale.ID) == "" {
		return repositories.PersistSaleResult{}, repositories.NewSaleError(repositories.SaleErrorInvalidInput, "sale id is required", nil)
	}
	if strings.TrimSpace(sale.BusinessID) == "" {
		return repositories.PersistSaleResult{}, repositories.NewSaleError(repositories.SaleErrorInvalidInput, "business id is required", nil)
	}
	if len(sale.Lines) == 0 {
		return repositories.PersistSaleResult{}, repositories.NewSaleError(repositories.SaleErrorInvalidInput, "at least one sale line is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.PersistSaleResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saleRef, err := r.sales.DocumentRef(ctx, sale.ID)
		if err != nil {
			return err
		}

		var prev *saleDocument
		snap, err := tx.Get(saleRef)
		switch status.Code(err) {
		case codes.NotFound:
			// first delivery
		case codes.OK:
			decoded := saleDocument{}
			if err := snap.DataTo(&decoded); err != nil {
				return fmt.Errorf("decode sale %s: %w", sale.ID, err)
			}
			prev = &decoded
		default:
			return err
		}

		moveStock := req.Finalize && (prev == nil || prev.Status != string(domain.SaleStatusFinal))

		// Correlate line and payment IDs with the stored sale before any
		// stock math so idempotent re-delivery updates rows instead of
		// duplicating them, and lot allocations carry the surviving line IDs.
		if prev != nil {
			byExternal := make(map[string]string, len(prev.Lines))
			for _, pl := range prev.Lines {
				if pl.ExternalLineID != "" {
					byExternal[pl.ExternalLineID] = pl.ID
				}
			}
			for i := range sale.Lines {
				if id, ok := byExternal[sale.Lines[i].ExternalLineID]; ok {
					sale.Lines[i].ID = id
				}
			}
			if len(prev.Payments) > 0 && len(sale.Payments) > 0 {
				sale.Payments[0].ID = prev.Payments[0].ID
			}
			if sale.CreatedBy == "" {
				sale.CreatedBy = prev.CreatedBy
			}
		}

		// All reads happen before any write inside the transaction.
		type stockRead struct {
			ref  *firestore.DocumentRef
			doc  stockDocument
			line domain.SaleLine
		}
		type lotRead struct {
			ref *firestore.DocumentRef
			doc lotDocument
		}
		var stockReads []stockRead
		lotReads := make(map[string][]lotRead)

		if moveStock {
			client, err := r.provider.Client(ctx)
			if err != nil {
				return err
			}
			for _, line := range sale.Lines {
				if !line.EnableStock {
					continue
				}
				stockRef, err := r.stocks.DocumentRef(ctx, stockDocID(line.VariationID, sale.LocationID))
				if err != nil {
					return err
				}
				stockSnap, err := tx.Get(stockRef)
				doc := stockDocument{
					VariationID: line.VariationID,
					ProductID:   line.ProductID,
					LocationID:  sale.LocationID,
				}
				switch status.Code(err) {
				case codes.NotFound:
					// level starts at zero, lots still decide availability
				case codes.OK:
					if err := stockSnap.DataTo(&doc); err != nil {
						return fmt.Errorf("decode stock %s: %w", stockRef.ID, err)
					}
				default:
					return err
				}
				stockReads = append(stockReads, stockRead{ref: stockRef, doc: doc, line: line})

				lotQuery := client.Collection(lotsCollection).
					Where("businessId", "==", sale.BusinessID).
					Where("variationId", "==", line.VariationID).
					Where("locationId", "==", sale.LocationID).
					Where("remaining", ">", 0).
					OrderBy("remaining", firestore.Asc).
					OrderBy("receivedAt", firestore.Asc)
				iter := tx.Documents(lotQuery)
				var reads []lotRead
				for {
					lotSnap, err := iter.Next()
					if errors.Is(err, iterator.Done) {
						break
					}
					if err != nil {
						return err
					}
					var lotDoc lotDocument
					if err := lotSnap.DataTo(&lotDoc); err != nil {
						return fmt.Errorf("decode purchase lot %s: %w", lotSnap.Ref.ID, err)
					}
					reads = append(reads, lotRead{ref: lotSnap.Ref, doc: lotDoc})
				}
				sortLotsFIFO(reads, func(lr lotRead) time.Time { return lr.doc.ReceivedAt })
				lotReads[line.VariationID] = reads
			}
		}

		var allocations []domain.LotAllocation
		stocks := make(map[string]domain.StockLevel)

		if moveStock {
			for _, sr := range stockReads {
				needed := sr.line.Quantity
				lots := lotReads[sr.line.VariationID]
				for i := range lots {
					if needed <= 0 {
						break
					}
					take := lots[i].doc.Remaining
					if take > needed {
						take = needed
					}
					lots[i].doc.Remaining -= take
					lots[i].doc.UpdatedAt = now
					needed -= take
					allocations = append(allocations, domain.LotAllocation{
						SaleLineID: sr.line.ID,
						LotID:      lots[i].ref.ID,
						Quantity:   take,
					})
					if err := tx.Set(lots[i].ref, lots[i].doc); err != nil {
						return err
					}
				}
				if needed > 0 {
					label := req.LineLabels[sr.line.VariationID]
					if label == "" {
						label = sr.line.VariationID
					}
					return &repositories.SaleError{
						Code:        repositories.SaleErrorInsufficientStock,
						Message:     fmt.Sprintf("insufficient stock for %s", label),
						VariationID: sr.line.VariationID,
						ProductName: label,
					}
				}

				sr.doc.OnHand -= sr.line.Quantity
				sr.doc.UpdatedAt = now
				if err := tx.Set(sr.ref, sr.doc); err != nil {
					return err
				}
				stocks[sr.line.VariationID] = sr.doc.toDomain(sr.ref.ID)
			}
		}

		doc := newSaleDocument(sale, now)
		if prev != nil {
			doc.CreatedAt = prev.CreatedAt
			if prev.Status == string(domain.SaleStatusFinal) && doc.Status != string(domain.SaleStatusFinal) {
				// a finalized sale never regresses on re-delivery; keep the
				// paid state and settlement time alongside the status
				doc.Status = prev.Status
				doc.PaymentStatus = prev.PaymentStatus
				doc.IsQuotation = prev.IsQuotation
				if len(doc.Payments) > 0 && len(prev.Payments) > 0 {
					doc.Payments[0].PaidOn = prev.Payments[0].PaidOn
				}
			}
		}
		if err := tx.Set(saleRef, doc); err != nil {
			return err
		}

		// Lot allocations are written under deterministic IDs so the costing
		// mapping survives the transaction and replays upsert cleanly.
		for _, alloc := range allocations {
			allocRef, err := r.allocations.DocumentRef(ctx, allocationDocID(sale.ID, alloc))
			if err != nil {
				return err
			}
			if err := tx.Set(allocRef, newAllocationDocument(sale.ID, sale.BusinessID, alloc, now)); err != nil {
				return err
			}
		}

		result = repositories.PersistSaleResult{
			Sale:        doc.toDomain(sale.ID),
			Replayed:    prev != nil,
			Allocations: allocations,
			Stocks:      stocks,
		}
		return nil
	})
	if err != nil {
		return repositories.PersistSaleResult{}, wrapSaleError("sales.persist", err)
	}
	return result, nil
}

// FindByInvoiceNo loads a sale by business and invoice number.
func (r *SaleRepository) FindByInvoiceNo(ctx context.Context, businessID, invoiceNo string) (domain.Sale, error) {
	if r == nil || r.sales == nil {
		return domain.Sale{}, errors.New("sale repository not initialised")
	}
	businessID = strings.TrimSpace(businessID)
	invoiceNo = strings.TrimSpace(invoiceNo)
	if businessID == "" || invoiceNo == "" {
		return domain.Sale{}, repositories.NewSaleError(repositories.SaleErrorInvalidInput, "business id and invoice number are required", nil)
	}

	docs, err := r.sales.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("businessId", "==", businessID).
			Where("invoiceNo", "==", invoiceNo).
			Limit(1)
	})
	if err != nil {
		return domain.Sale{}, wrapSaleError("sales.findByInvoice", err)
	}
	if len(docs) == 0 {
		return domain.Sale{}, repositories.NewSaleError(repositories.SaleErrorNotFound, fmt.Sprintf("sale %s not found", invoiceNo), nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListByContact returns the order-history projection for one contact, newest
// first, paged with an opaque cursor.
func (r *SaleRepository) ListByContact(ctx context.Context, query repositories.SaleHistoryQuery) (domain.CursorPage[domain.SaleSummary], error) {
	if r == nil || r.sales == nil {
		return domain.CursorPage[domain.SaleSummary]{}, errors.New("sale repository not initialised")
	}
	if strings.TrimSpace(query.ContactID) == "" {
		return domain.CursorPage[domain.SaleSummary]{}, repositories.NewSaleError(repositories.SaleErrorInvalidInput, "contact id is required", nil)
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	docs, err := r.sales.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("businessId", "==", query.BusinessID).
			Where("contactId", "==", query.ContactID).
			OrderBy("transactionDate", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Limit(pageSize + 1)
		if token := strings.TrimSpace(query.PageToken); token != "" {
			if cursor, err := decodeSaleCursor(token); err == nil {
				q = q.StartAfter(cursor.TransactionDate, cursor.ID)
			}
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.SaleSummary]{}, wrapSaleError("sales.listByContact", err)
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	summaries := make([]domain.SaleSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, domain.SaleSummary{
			ID:              doc.ID,
			InvoiceNo:       doc.Data.InvoiceNo,
			TransactionDate: doc.Data.TransactionDate,
			FinalTotal:      doc.Data.FinalTotal,
			PaymentStatus:   domain.PaymentStatus(doc.Data.PaymentStatus),
			Status:          domain.SaleStatus(doc.Data.Status),
		})
	}

	var nextToken string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := encodeSaleCursor(saleCursor{ID: last.ID, TransactionDate: last.Data.TransactionDate})
		if err != nil {
			return domain.CursorPage[domain.SaleSummary]{}, wrapSaleError("sales.listByContact", err)
		}
		nextToken = token
	}

	return domain.CursorPage[domain.SaleSummary]{Items: summaries, NextPageToken: nextToken}, nil
}

func stockDocID(variationID, locationID string) string {
	return variationID + "__" + locationID
}

// sortLotsFIFO reorders lots by received time ascending. Firestore's
// inequality filter forces the first OrderBy onto remaining, so the FIFO
// ordering is restored in memory.
func sortLotsFIFO[T any](lots []T, receivedAt func(T) time.Time) {
	for i := 1; i < len(lots); i++ {
		for j := i; j > 0 && receivedAt(lots[j]).Before(receivedAt(lots[j-1])); j-- {
			lots[j], lots[j-1] = lots[j-1], lots[j]
		}
	}
}

func wrapSaleError(op string, err error) error {
	if err == nil {
		return nil
	}
	var saleErr *repositories.SaleError
	if errors.As(err, &saleErr) {
		if saleErr.Op == "" {
			saleErr.Op = op
		}
		return saleErr
	}
	return pfirestore.WrapError(op, err)
}
