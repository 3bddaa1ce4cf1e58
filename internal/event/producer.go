package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	pkgkafka "github.com/szegedss/ecommerce-mern-sub000/pkg/kafka"
)

// Kafka topic constants for order and review domain events.
const (
	TopicOrderCreated           = "storefront.order.created"
	TopicOrderStatusChanged     = "storefront.order.status_changed"
	TopicOrderCancelled         = "storefront.order.cancelled"
	TopicOrderDeliveryConfirmed = "storefront.order.delivery_confirmed"
	TopicReviewCreated          = "storefront.review.created"
)

// Aggregate type constants.
const (
	AggregateTypeOrder  = "order"
	AggregateTypeReview = "review"
)

// Source identifier for events originating from this service.
const SourceStorefront = "storefront-order-service"

// OrderCreatedData is the payload for an order.created event (full order snapshot).
type OrderCreatedData struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	Items          []OrderItemData `json:"items"`
	SubtotalAmount int64           `json:"subtotal_amount"`
	TotalAmount    int64           `json:"total_amount"`
	Currency       string          `json:"currency"`
	Notes          string          `json:"notes,omitempty"`
}

// OrderItemData is the event payload for an order item.
type OrderItemData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
}

// OrderCancelledData is the payload for an order.cancelled event.
type OrderCancelledData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// DeliveryConfirmedData is the payload for an order.delivery_confirmed event.
type DeliveryConfirmedData struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	// Auto is true when the confirmation window elapsed without buyer action.
	Auto bool `json:"auto"`
}

// ReviewCreatedData is the payload for a review.created event.
type ReviewCreatedData struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id"`
	Rating    int    `json:"rating"`
}

// Producer publishes order and review domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderCreated publishes an order.created event with the full order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}

	data := OrderCreatedData{
		ID:             order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		Items:          items,
		SubtotalAmount: order.SubtotalAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		Notes:          order.Notes,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCreated, order.ID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, event); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)

	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus, note string) error {
	data := OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Note:      note,
	}

	event, err := pkgkafka.NewEvent(TopicOrderStatusChanged, orderID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.status_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderStatusChanged, event); err != nil {
		return fmt.Errorf("publish order.status_changed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.status_changed event",
		slog.String("order_id", orderID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)

	return nil
}

// PublishOrderCancelled publishes an order.cancelled event.
func (p *Producer) PublishOrderCancelled(ctx context.Context, orderID, reason string) error {
	data := OrderCancelledData{
		OrderID: orderID,
		Reason:  reason,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCancelled, orderID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.cancelled event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCancelled, event); err != nil {
		return fmt.Errorf("publish order.cancelled event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.cancelled event",
		slog.String("order_id", orderID),
		slog.String("reason", reason),
	)

	return nil
}

// PublishDeliveryConfirmed publishes an order.delivery_confirmed event.
func (p *Producer) PublishDeliveryConfirmed(ctx context.Context, orderID, userID string, confirmedAt time.Time, auto bool) error {
	data := DeliveryConfirmedData{
		OrderID:     orderID,
		UserID:      userID,
		ConfirmedAt: confirmedAt,
		Auto:        auto,
	}

	event, err := pkgkafka.NewEvent(TopicOrderDeliveryConfirmed, orderID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.delivery_confirmed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderDeliveryConfirmed, event); err != nil {
		return fmt.Errorf("publish order.delivery_confirmed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.delivery_confirmed event",
		slog.String("order_id", orderID),
		slog.Bool("auto", auto),
	)

	return nil
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, review *domain.Review) error {
	data := ReviewCreatedData{
		ReviewID:  review.ID,
		ProductID: review.ProductID,
		UserID:    review.UserID,
		OrderID:   review.OrderID,
		Rating:    review.Rating,
	}

	event, err := pkgkafka.NewEvent(TopicReviewCreated, review.ID, AggregateTypeReview, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create review.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicReviewCreated, event); err != nil {
		return fmt.Errorf("publish review.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published review.created event",
		slog.String("review_id", review.ID),
		slog.String("product_id", review.ProductID),
	)

	return nil
}
