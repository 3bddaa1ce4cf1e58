package domain

import "time"

// Rating bounds for reviews.
const (
	MinRating = 1
	MaxRating = 5
)

// Limits on free-text review fields.
const (
	MaxTitleLen   = 120
	MaxCommentLen = 2000
)

// Review represents a verified-purchase product review. OrderID ties the
// review to the confirmed delivery that made it eligible.
type Review struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	UserID       string    `json:"user_id"`
	OrderID      string    `json:"order_id"`
	Rating       int       `json:"rating"`
	Title        string    `json:"title"`
	Comment      string    `json:"comment"`
	HelpfulCount int       `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReviewSummary contains aggregate review statistics for a product.
type ReviewSummary struct {
	AverageRating float64 `json:"average_rating"`
	TotalCount    int     `json:"total_count"`
}

// Eligibility reason constants.
const (
	ReasonNoDeliveredOrder       = "no_delivered_order"
	ReasonWaitingForConfirmation = "waiting_for_delivery_confirmation"
	ReasonAlreadyReviewed        = "already_reviewed"
)

// Eligibility is the result of resolving whether a user may review a
// product. When CanReview is false, Reason explains why; when the user has a
// delivery still inside its confirmation window, ConfirmEligibleAt carries
// the instant the window closes.
type Eligibility struct {
	CanReview         bool       `json:"can_review"`
	OrderID           string     `json:"order_id,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	ConfirmEligibleAt *time.Time `json:"confirm_eligible_at,omitempty"`
}

// IsValidRating reports whether the rating is within the allowed bounds.
func IsValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
