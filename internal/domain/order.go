package domain

import "time"

// Order status constants.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment status constants. Payment status is an independent axis from the
// fulfillment status and is updated by the payment provider callback.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Order represents a customer order with its fulfillment state.
type Order struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	Status              string          `json:"status"`
	PaymentStatus       string          `json:"payment_status"`
	Items               []OrderItem     `json:"items"`
	SubtotalAmount      int64           `json:"subtotal_amount"`
	TotalAmount         int64           `json:"total_amount"`
	Currency            string          `json:"currency"`
	Notes               string          `json:"notes,omitempty"`
	ShippedAt           *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt         *time.Time      `json:"delivered_at,omitempty"`
	DeliveryConfirmed   bool            `json:"delivery_confirmed"`
	DeliveryConfirmedAt *time.Time      `json:"delivery_confirmed_at,omitempty"`
	Timeline            []TimelineEntry `json:"timeline,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// OrderItem represents a line item in an order. Name and price are snapshots
// taken at checkout time; later catalog edits do not affect placed orders.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns the total price for this line item.
func (i *OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// TimelineEntry is an append-only record of a status change.
type TimelineEntry struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ValidPaymentStatuses returns all valid payment statuses.
func ValidPaymentStatuses() []string {
	return []string{PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed}
}

// IsValidPaymentStatus checks if a payment status string is valid.
func IsValidPaymentStatus(status string) bool {
	for _, s := range ValidPaymentStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedTransitions defines which fulfillment status transitions are valid.
// Delivered and cancelled are terminal.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusDelivered},
		OrderStatusDelivered:  {},
		OrderStatusCancelled:  {},
	}
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	allowed, ok := AllowedTransitions()[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// ContainsProduct reports whether the order has a line item for the product.
func (o *Order) ContainsProduct(productID string) bool {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return true
		}
	}
	return false
}
