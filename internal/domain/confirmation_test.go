package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const grace = 24 * time.Hour

func deliveredOrder(deliveredAt time.Time) *Order {
	return &Order{Status: OrderStatusDelivered, DeliveredAt: &deliveredAt}
}

// ============================================================================
// ConfirmationState Tests
// ============================================================================

func TestConfirmationState_NotDelivered(t *testing.T) {
	now := time.Now()
	for _, s := range []string{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled} {
		order := &Order{Status: s}
		assert.Equal(t, ConfirmationNotDelivered, order.ConfirmationState(grace, now), "status %q", s)
	}
}

func TestConfirmationState_DeliveredWithoutTimestamp(t *testing.T) {
	// Inconsistent row: status delivered but no delivered_at. Treated as not
	// delivered rather than confirming on a zero timestamp.
	order := &Order{Status: OrderStatusDelivered}
	assert.Equal(t, ConfirmationNotDelivered, order.ConfirmationState(grace, time.Now()))
}

func TestConfirmationState_ExplicitlyConfirmed(t *testing.T) {
	now := time.Now()
	order := deliveredOrder(now.Add(-time.Hour))
	order.DeliveryConfirmed = true
	assert.Equal(t, ConfirmationConfirmed, order.ConfirmationState(grace, now))
}

func TestConfirmationState_InsideGraceWindow(t *testing.T) {
	now := time.Now()
	order := deliveredOrder(now.Add(-23 * time.Hour))
	assert.Equal(t, ConfirmationAwaiting, order.ConfirmationState(grace, now))
}

func TestConfirmationState_ExactlyAtBoundary(t *testing.T) {
	now := time.Now()
	order := deliveredOrder(now.Add(-grace))
	assert.Equal(t, ConfirmationConfirmed, order.ConfirmationState(grace, now))
}

func TestConfirmationState_JustBeforeBoundary(t *testing.T) {
	now := time.Now()
	order := deliveredOrder(now.Add(-grace + time.Second))
	assert.Equal(t, ConfirmationAwaiting, order.ConfirmationState(grace, now))
}

func TestConfirmationState_PastGraceWindow(t *testing.T) {
	now := time.Now()
	order := deliveredOrder(now.Add(-48 * time.Hour))
	assert.Equal(t, ConfirmationConfirmed, order.ConfirmationState(grace, now))
}

// ============================================================================
// AutoConfirmAt Tests
// ============================================================================

func TestAutoConfirmAt_NotDelivered(t *testing.T) {
	order := &Order{Status: OrderStatusShipped}
	assert.Nil(t, order.AutoConfirmAt(grace))
}

func TestAutoConfirmAt_Delivered(t *testing.T) {
	deliveredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder(deliveredAt)
	got := order.AutoConfirmAt(grace)
	assert.NotNil(t, got)
	assert.Equal(t, deliveredAt.Add(grace), *got)
}
