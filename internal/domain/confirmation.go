package domain

import "time"

// ConfirmationState describes where an order sits in the delivery
// confirmation flow. It is derived from stored fields, never stored itself.
type ConfirmationState string

const (
	ConfirmationNotDelivered ConfirmationState = "not_delivered"
	ConfirmationAwaiting     ConfirmationState = "awaiting_confirmation"
	ConfirmationConfirmed    ConfirmationState = "confirmed"
)

// ConfirmationState computes the delivery confirmation state of the order as
// of now, given the configured grace period. An order whose grace period has
// elapsed is reported as confirmed even before the confirmation has been
// persisted; callers that need the persisted flag check DeliveryConfirmed.
func (o *Order) ConfirmationState(grace time.Duration, now time.Time) ConfirmationState {
	if o.Status != OrderStatusDelivered || o.DeliveredAt == nil {
		return ConfirmationNotDelivered
	}
	if o.DeliveryConfirmed {
		return ConfirmationConfirmed
	}
	if !now.Before(o.DeliveredAt.Add(grace)) {
		return ConfirmationConfirmed
	}
	return ConfirmationAwaiting
}

// AutoConfirmAt returns the instant at which the order auto-confirms, or nil
// if the order has not been delivered.
func (o *Order) AutoConfirmAt(grace time.Duration) *time.Time {
	if o.DeliveredAt == nil {
		return nil
	}
	t := o.DeliveredAt.Add(grace)
	return &t
}
