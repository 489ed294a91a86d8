package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced = "OrderPlaced"

	eventVersion = 1
	producerName = "storefront-api"
)

// Envelope wraps every event published by the service
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	EventVersion  int             `json:"eventVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPlacedLine is one reserved line of a placed order
type OrderPlacedLine struct {
	ProductID uuid.UUID       `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"qty"`
}

// OrderPlacedEvent is emitted after an order and its stock reservations commit
type OrderPlacedEvent struct {
	OrderID       uuid.UUID            `json:"orderId"`
	UserID        uuid.UUID            `json:"userId"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	TotalAmount   decimal.Decimal      `json:"totalAmount"`
	Items         []OrderPlacedLine    `json:"items"`
	PlacedAt      time.Time            `json:"placedAt"`
}

// NewOrderPlacedEvent builds the event payload for a stored order
func NewOrderPlacedEvent(order *domain.Order) OrderPlacedEvent {
	lines := make([]OrderPlacedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderPlacedLine{
			ProductID: item.ProductID,
			Title:     item.Title,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	return OrderPlacedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Items:         lines,
		PlacedAt:      order.CreatedAt,
	}
}

// Publisher delivers domain events to downstream consumers
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, OrderPlacedEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

func newEnvelope(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}
