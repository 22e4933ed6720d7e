package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/poslink/api/internal/services"
)

// PubSubEventPublisher publishes sale and stock events to Pub/Sub topics.
// A nil topic disables that event class.
type PubSubEventPublisher struct {
	saleTopic  *pubsub.Topic
	stockTopic *pubsub.Topic
	marshal    func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed sync event publisher.
func NewPubSubEventPublisher(saleTopic, stockTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if saleTopic == nil && stockTopic == nil {
		return nil, errors.New("pubsub event publisher: at least one topic is required")
	}
	return &PubSubEventPublisher{
		saleTopic:  saleTopic,
		stockTopic: stockTopic,
		marshal:    json.Marshal,
	}, nil
}

// PublishSaleEvent emits a sale lifecycle event on the sale topic.
func (p *PubSubEventPublisher) PublishSaleEvent(ctx context.Context, message services.SaleEventMessage) (string, error) {
	if p == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	if p.saleTopic == nil {
		return "", nil
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal sale event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", message.Event)
	setAttr(attrs, "saleId", message.SaleID)
	setAttr(attrs, "businessId", message.BusinessID)
	setAttr(attrs, "invoiceNo", message.InvoiceNo)
	if message.Replayed {
		attrs["replayed"] = "true"
	}

	result := p.saleTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish sale event: %w", err)
	}
	return id, nil
}

// PublishStockEvent emits a stock movement event on the stock topic.
func (p *PubSubEventPublisher) PublishStockEvent(ctx context.Context, message services.StockEventMessage) (string, error) {
	if p == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	if p.stockTopic == nil {
		return "", nil
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal stock event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", message.Event)
	setAttr(attrs, "businessId", message.BusinessID)
	setAttr(attrs, "variationId", message.VariationID)
	setAttr(attrs, "locationId", message.LocationID)
	setAttr(attrs, "quantity", strconv.Itoa(message.Quantity))

	result := p.stockTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish stock event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
