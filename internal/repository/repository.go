package repository

import (
	"context"
	"time"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order, its items, and the initial timeline entry,
	// and decrements product stock, all in one transaction. It fails if any
	// line item exceeds the available stock.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier, including items
	// and the status timeline.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	// Listed orders carry items but not timelines.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// TransitionStatus moves an order from one status to another with a
	// compare-and-set on the current status, appends a timeline entry, stamps
	// shipped_at/delivered_at where applicable, and for a cancellation
	// restores product stock, all in one transaction. A losing racer gets a
	// conflict error; a missing order gets a not-found error.
	TransitionStatus(ctx context.Context, id, from, to, note string, now time.Time) error

	// UpdatePaymentStatus sets the payment status axis of an order.
	UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) error

	// ConfirmDelivery marks a delivered order as confirmed by the buyer. The
	// update is conditional on delivery_confirmed being false, so a repeat
	// call is a no-op and delivery_confirmed_at is written at most once.
	// Returns true if this call performed the confirmation.
	ConfirmDelivery(ctx context.Context, id string, confirmedAt time.Time) (bool, error)

	// ListDeliveredByUserAndProduct returns the user's delivered orders that
	// contain the given product, ordered by delivered_at ascending, with items.
	ListDeliveredByUserAndProduct(ctx context.Context, userID, productID string) ([]domain.Order, error)
}

// ReviewFilter defines filter criteria for listing reviews of a product.
type ReviewFilter struct {
	ProductID string
	Page      int
	PerPage   int
}

// ReviewRepository defines the interface for review persistence operations.
type ReviewRepository interface {
	// Create inserts a review and recomputes the product's rating aggregate
	// in the same transaction. A violation of the (product_id, user_id,
	// order_id) unique constraint yields an already-exists error.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID retrieves a review by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// Update persists rating, title, and comment changes and recomputes the
	// product's rating aggregate in the same transaction.
	Update(ctx context.Context, review *domain.Review) error

	// Delete removes a review and recomputes the product's rating aggregate
	// in the same transaction.
	Delete(ctx context.Context, id string) error

	// ListByProduct returns reviews for a product, newest first, with the
	// total count.
	ListByProduct(ctx context.Context, filter ReviewFilter) ([]domain.Review, int, error)

	// ExistsForOrder reports whether the user has already reviewed the
	// product for the given order.
	ExistsForOrder(ctx context.Context, productID, userID, orderID string) (bool, error)

	// Summary computes the aggregate rating statistics for a product.
	Summary(ctx context.Context, productID string) (*domain.ReviewSummary, error)

	// ToggleHelpful records a helpful vote for the review by the user, or
	// reverses it if one already exists. Returns whether the vote now stands
	// and the new helpful count.
	ToggleHelpful(ctx context.Context, reviewID, userID string) (bool, int, error)
}

// ProductRepository defines the read surface this service needs from the
// product catalog.
type ProductRepository interface {
	// GetByID retrieves a product by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetByIDs retrieves multiple products at once, keyed by ID. Missing IDs
	// are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}
