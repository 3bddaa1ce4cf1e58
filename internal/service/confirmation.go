package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/event"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

// ConfirmationGate decides whether a delivery counts as confirmed. It is
// pull-based: nothing sweeps the table, the window is evaluated whenever an
// order passes through the gate, and an elapsed window is persisted at that
// moment. An order past its window therefore reads as unconfirmed in the
// store until something evaluates it, which is acceptable because every path
// that depends on confirmation goes through the gate first.
type ConfirmationGate struct {
	orderRepo repository.OrderRepository
	producer  *event.Producer
	logger    *slog.Logger
	grace     time.Duration
	now       func() time.Time
}

// NewConfirmationGate creates a confirmation gate with the given grace
// period.
func NewConfirmationGate(orderRepo repository.OrderRepository, producer *event.Producer, logger *slog.Logger, grace time.Duration) *ConfirmationGate {
	return &ConfirmationGate{
		orderRepo: orderRepo,
		producer:  producer,
		logger:    logger,
		grace:     grace,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmationResult is the outcome of evaluating an order against the
// confirmation window.
type ConfirmationResult struct {
	State domain.ConfirmationState
	// AutoConfirmAt is set while the order is awaiting confirmation.
	AutoConfirmAt *time.Time
}

// EvaluateConfirmation computes the order's confirmation state and, when the
// grace period has elapsed without buyer action, persists the auto
// confirmation. The persisted timestamp is the end of the window, not the
// evaluation time, so the result is the same no matter when the order is
// next looked at. The order's fields are updated in place on confirmation.
func (g *ConfirmationGate) EvaluateConfirmation(ctx context.Context, order *domain.Order) (ConfirmationResult, error) {
	now := g.now()

	switch order.ConfirmationState(g.grace, now) {
	case domain.ConfirmationNotDelivered:
		return ConfirmationResult{State: domain.ConfirmationNotDelivered}, nil

	case domain.ConfirmationAwaiting:
		return ConfirmationResult{
			State:         domain.ConfirmationAwaiting,
			AutoConfirmAt: order.AutoConfirmAt(g.grace),
		}, nil
	}

	if order.DeliveryConfirmed {
		return ConfirmationResult{State: domain.ConfirmationConfirmed}, nil
	}

	// Window elapsed but not yet persisted: auto-confirm now. The conditional
	// update makes a racing evaluation a no-op.
	confirmedAt := order.DeliveredAt.Add(g.grace)
	performed, err := g.orderRepo.ConfirmDelivery(ctx, order.ID, confirmedAt)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("persist auto confirmation: %w", err)
	}

	order.DeliveryConfirmed = true
	if order.DeliveryConfirmedAt == nil {
		order.DeliveryConfirmedAt = &confirmedAt
	}

	if performed {
		if err := g.producer.PublishDeliveryConfirmed(ctx, order.ID, order.UserID, confirmedAt, true); err != nil {
			g.logger.ErrorContext(ctx, "failed to publish order.delivery_confirmed event",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}

		g.logger.InfoContext(ctx, "delivery auto-confirmed",
			slog.String("order_id", order.ID),
			slog.Time("confirmed_at", confirmedAt),
		)
	}

	return ConfirmationResult{State: domain.ConfirmationConfirmed}, nil
}

// ConfirmDelivery records an explicit buyer confirmation of a delivered
// order. It is idempotent: confirming an already confirmed order succeeds
// without touching the stored timestamp.
func (g *ConfirmationGate) ConfirmDelivery(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := g.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrOrderNotFound(orderID)
		}
		return nil, fmt.Errorf("get order for confirmation: %w", err)
	}

	if order.UserID != userID {
		return nil, apperrors.Unauthorized("order does not belong to the caller")
	}

	if order.Status != domain.OrderStatusDelivered {
		return nil, domain.ErrNotDelivered(orderID)
	}

	if order.DeliveryConfirmed {
		return order, nil
	}

	confirmedAt := g.now()
	performed, err := g.orderRepo.ConfirmDelivery(ctx, orderID, confirmedAt)
	if err != nil {
		return nil, fmt.Errorf("confirm delivery: %w", err)
	}

	order.DeliveryConfirmed = true
	if performed {
		order.DeliveryConfirmedAt = &confirmedAt

		if err := g.producer.PublishDeliveryConfirmed(ctx, orderID, userID, confirmedAt, false); err != nil {
			g.logger.ErrorContext(ctx, "failed to publish order.delivery_confirmed event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}

		g.logger.InfoContext(ctx, "delivery confirmed by buyer",
			slog.String("order_id", orderID),
			slog.String("user_id", userID),
		)
	}

	return order, nil
}
