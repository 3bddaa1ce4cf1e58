package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/event"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

// OrderService implements the business logic for order lifecycle operations.
type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	producer    *event.Producer
	logger      *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, producer *event.Producer, logger *slog.Logger) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		producer:    producer,
		logger:      logger,
	}
}

// CreateOrderItemInput holds the parameters for an order line item. Name and
// price come from the catalog at creation time, not from the caller.
type CreateOrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	UserID   string
	Items    []CreateOrderItemInput
	Currency string
	Notes    string
}

// CreateOrder creates a new order, snapshotting product name and price into
// the line items and decrementing stock transactionally.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.UserID == "" {
		return nil, domain.ErrMissingField("user_id")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one item")
	}
	if len(input.Currency) != 3 {
		return nil, apperrors.InvalidInput("currency must be a 3-letter ISO code")
	}

	productIDs := make([]string, 0, len(input.Items))
	for _, itemInput := range input.Items {
		if itemInput.ProductID == "" {
			return nil, domain.ErrMissingField("product_id")
		}
		if itemInput.Quantity <= 0 {
			return nil, apperrors.InvalidInput("quantity must be positive")
		}
		productIDs = append(productIDs, itemInput.ProductID)
	}

	products, err := s.productRepo.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products for order: %w", err)
	}

	now := time.Now().UTC()
	orderID := uuid.New().String()

	// Build order items from catalog snapshots and calculate the subtotal.
	var subtotal int64
	items := make([]domain.OrderItem, len(input.Items))
	for i, itemInput := range input.Items {
		product, ok := products[itemInput.ProductID]
		if !ok {
			return nil, apperrors.NotFound("product", itemInput.ProductID)
		}
		items[i] = domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  itemInput.Quantity,
		}
		subtotal += items[i].LineTotal()
	}

	order := &domain.Order{
		ID:             orderID,
		UserID:         input.UserID,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		Items:          items,
		SubtotalAmount: subtotal,
		TotalAmount:    subtotal,
		Currency:       strings.ToUpper(input.Currency),
		Notes:          input.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order.Timeline = []domain.TimelineEntry{{Status: domain.OrderStatusPending, Note: "order placed", CreatedAt: now}}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// GetOrder retrieves an order by its ID, including items and timeline.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrOrderNotFound(id)
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s", *filter.Status, strings.Join(domain.ValidStatuses(), ", ")))
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// TransitionStatus moves the order to a new fulfillment status with
// lifecycle validation. The repository performs the write as a
// compare-and-set on the loaded status, so a concurrent transition surfaces
// as an invalid transition rather than a lost update.
func (s *OrderService) TransitionStatus(ctx context.Context, id, newStatus, note string) (*domain.Order, error) {
	if !domain.IsValidStatus(newStatus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s", newStatus, strings.Join(domain.ValidStatuses(), ", ")))
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrOrderNotFound(id)
		}
		return nil, fmt.Errorf("get order for transition: %w", err)
	}

	if !order.CanTransitionTo(newStatus) {
		return nil, domain.ErrInvalidTransition(order.Status, newStatus)
	}

	oldStatus := order.Status
	now := time.Now().UTC()

	if err := s.orderRepo.TransitionStatus(ctx, id, oldStatus, newStatus, note, now); err != nil {
		return nil, fmt.Errorf("transition order status: %w", err)
	}

	if err := s.producer.PublishOrderStatusChanged(ctx, id, oldStatus, newStatus, note); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	if newStatus == domain.OrderStatusCancelled {
		if err := s.producer.PublishOrderCancelled(ctx, id, note); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.cancelled event",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)

	updated, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload order after transition: %w", err)
	}

	return updated, nil
}

// CancelOrder cancels an order with a reason. Stock restoration happens in
// the same transaction as the status write.
func (s *OrderService) CancelOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	return s.TransitionStatus(ctx, id, domain.OrderStatusCancelled, reason)
}

// UpdatePaymentStatus records the outcome of a payment callback. The payment
// axis is independent of the fulfillment status.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) error {
	if !domain.IsValidPaymentStatus(paymentStatus) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid payment status %q, must be one of: %s", paymentStatus, strings.Join(domain.ValidPaymentStatuses(), ", ")))
	}

	if err := s.orderRepo.UpdatePaymentStatus(ctx, id, paymentStatus); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.ErrOrderNotFound(id)
		}
		return fmt.Errorf("update payment status: %w", err)
	}

	s.logger.InfoContext(ctx, "payment status updated",
		slog.String("order_id", id),
		slog.String("payment_status", paymentStatus),
	)

	return nil
}
