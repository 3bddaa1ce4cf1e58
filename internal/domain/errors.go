package domain

import (
	"fmt"
	"net/http"

	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

// ErrOrderNotFound creates the error returned when an order does not exist.
func ErrOrderNotFound(orderID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "ORDER_NOT_FOUND",
		Message: fmt.Sprintf("order with id %s not found", orderID),
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}

// ErrInvalidTransition creates the error returned when a status transition is
// not allowed by the lifecycle table, or when a concurrent transition won the
// race.
func ErrInvalidTransition(from, to string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition order from %s to %s", from, to),
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}
}

// ErrNotDelivered creates the error returned when an operation requires a
// delivered order.
func ErrNotDelivered(orderID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "NOT_DELIVERED",
		Message: fmt.Sprintf("order %s has not been delivered", orderID),
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}
}

// ErrConfirmationPending creates the error returned when a review is
// submitted against a delivery still inside its confirmation window.
func ErrConfirmationPending(orderID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "CONFIRMATION_PENDING",
		Message: fmt.Sprintf("delivery of order %s is awaiting confirmation", orderID),
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}
}

// ErrProductNotInOrder creates the error returned when the named product has
// no line item in the order.
func ErrProductNotInOrder(productID, orderID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "PRODUCT_NOT_IN_ORDER",
		Message: fmt.Sprintf("product %s is not part of order %s", productID, orderID),
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}
}

// ErrDuplicateReview creates the error returned when the user has already
// reviewed the product for this order.
func ErrDuplicateReview(productID, orderID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "DUPLICATE_REVIEW",
		Message: fmt.Sprintf("product %s has already been reviewed for order %s", productID, orderID),
		Status:  http.StatusConflict,
		Err:     apperrors.ErrAlreadyExists,
	}
}

// ErrInvalidRating creates the error returned when the rating is outside
// [MinRating, MaxRating].
func ErrInvalidRating(rating int) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "INVALID_RATING",
		Message: fmt.Sprintf("rating must be between %d and %d, got %d", MinRating, MaxRating, rating),
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}
}

// ErrMissingField creates the error returned when a required field is empty.
func ErrMissingField(field string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "MISSING_FIELD",
		Message: fmt.Sprintf("required field %s is missing", field),
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}
}

// ErrReviewNotFound creates the error returned when a review does not exist.
func ErrReviewNotFound(reviewID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "REVIEW_NOT_FOUND",
		Message: fmt.Sprintf("review with id %s not found", reviewID),
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}
