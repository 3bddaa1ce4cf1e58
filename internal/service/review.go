package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/event"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

// SummaryCache is the read-through cache for per-product review summaries.
type SummaryCache interface {
	Get(ctx context.Context, productID string) (*domain.ReviewSummary, error)
	Set(ctx context.Context, productID string, summary *domain.ReviewSummary) error
	Invalidate(ctx context.Context, productID string) error
}

// ReviewService implements review eligibility resolution and review CRUD.
type ReviewService struct {
	reviewRepo  repository.ReviewRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	gate        *ConfirmationGate
	producer    *event.Producer
	cache       SummaryCache
	logger      *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviewRepo repository.ReviewRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	gate *ConfirmationGate,
	producer *event.Producer,
	cache SummaryCache,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviewRepo:  reviewRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		gate:        gate,
		producer:    producer,
		cache:       cache,
		logger:      logger,
	}
}

// ResolveEligibility determines whether the user may review the product.
// Candidates are the user's delivered orders containing the product, oldest
// delivery first; each is run through the confirmation gate (which may
// persist an elapsed window), and the first confirmed order without an
// existing review wins. A negative answer is informational, not an error.
func (s *ReviewService) ResolveEligibility(ctx context.Context, userID, productID string) (*domain.Eligibility, error) {
	if userID == "" {
		return nil, domain.ErrMissingField("user_id")
	}
	if productID == "" {
		return nil, domain.ErrMissingField("product_id")
	}

	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, fmt.Errorf("load product for eligibility: %w", err)
	}

	orders, err := s.orderRepo.ListDeliveredByUserAndProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("list delivered orders: %w", err)
	}

	if len(orders) == 0 {
		return &domain.Eligibility{CanReview: false, Reason: domain.ReasonNoDeliveredOrder}, nil
	}

	var earliestAutoConfirm *time.Time
	for i := range orders {
		order := &orders[i]

		result, err := s.gate.EvaluateConfirmation(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("evaluate confirmation for order %s: %w", order.ID, err)
		}

		if result.State == domain.ConfirmationAwaiting {
			if earliestAutoConfirm == nil {
				earliestAutoConfirm = result.AutoConfirmAt
			}
			continue
		}

		reviewed, err := s.reviewRepo.ExistsForOrder(ctx, productID, userID, order.ID)
		if err != nil {
			return nil, fmt.Errorf("check existing review: %w", err)
		}
		if !reviewed {
			return &domain.Eligibility{CanReview: true, OrderID: order.ID}, nil
		}
	}

	if earliestAutoConfirm != nil {
		return &domain.Eligibility{
			CanReview:         false,
			Reason:            domain.ReasonWaitingForConfirmation,
			ConfirmEligibleAt: earliestAutoConfirm,
		}, nil
	}

	return &domain.Eligibility{CanReview: false, Reason: domain.ReasonAlreadyReviewed}, nil
}

// SubmitReviewInput holds the parameters for submitting a review.
type SubmitReviewInput struct {
	UserID    string
	ProductID string
	OrderID   string
	Rating    int
	Title     string
	Comment   string
}

// SubmitReview creates a verified-purchase review after re-validating the
// full eligibility chain against the named order. The unique constraint on
// (product_id, user_id, order_id) is the final authority on duplicates.
func (s *ReviewService) SubmitReview(ctx context.Context, input SubmitReviewInput) (*domain.Review, error) {
	switch {
	case input.UserID == "":
		return nil, domain.ErrMissingField("user_id")
	case input.ProductID == "":
		return nil, domain.ErrMissingField("product_id")
	case input.OrderID == "":
		return nil, domain.ErrMissingField("order_id")
	}
	if !domain.IsValidRating(input.Rating) {
		return nil, domain.ErrInvalidRating(input.Rating)
	}
	if len(input.Title) > domain.MaxTitleLen {
		return nil, apperrors.InvalidInput(fmt.Sprintf("title must be at most %d characters", domain.MaxTitleLen))
	}
	if len(input.Comment) > domain.MaxCommentLen {
		return nil, apperrors.InvalidInput(fmt.Sprintf("comment must be at most %d characters", domain.MaxCommentLen))
	}

	order, err := s.orderRepo.GetByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrOrderNotFound(input.OrderID)
		}
		return nil, fmt.Errorf("get order for review: %w", err)
	}

	if order.UserID != input.UserID {
		return nil, apperrors.Unauthorized("order does not belong to the caller")
	}

	if !order.ContainsProduct(input.ProductID) {
		return nil, domain.ErrProductNotInOrder(input.ProductID, input.OrderID)
	}

	result, err := s.gate.EvaluateConfirmation(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("evaluate confirmation for review: %w", err)
	}
	switch result.State {
	case domain.ConfirmationNotDelivered:
		return nil, domain.ErrNotDelivered(input.OrderID)
	case domain.ConfirmationAwaiting:
		return nil, domain.ErrConfirmationPending(input.OrderID)
	}

	// Fast-path duplicate check for a friendlier error; the DB constraint
	// still catches the race.
	exists, err := s.reviewRepo.ExistsForOrder(ctx, input.ProductID, input.UserID, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateReview(input.ProductID, input.OrderID)
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:        uuid.New().String(),
		ProductID: input.ProductID,
		UserID:    input.UserID,
		OrderID:   input.OrderID,
		Rating:    input.Rating,
		Title:     input.Title,
		Comment:   input.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.invalidateSummary(ctx, input.ProductID)

	if err := s.producer.PublishReviewCreated(ctx, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.created event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("product_id", review.ProductID),
		slog.Int("rating", review.Rating),
	)

	return review, nil
}

// UpdateReviewInput holds the editable fields of a review.
type UpdateReviewInput struct {
	Rating  int
	Title   string
	Comment string
}

// UpdateReview edits the caller's own review and recomputes the product
// aggregate.
func (s *ReviewService) UpdateReview(ctx context.Context, userID, reviewID string, input UpdateReviewInput) (*domain.Review, error) {
	if !domain.IsValidRating(input.Rating) {
		return nil, domain.ErrInvalidRating(input.Rating)
	}
	if len(input.Title) > domain.MaxTitleLen {
		return nil, apperrors.InvalidInput(fmt.Sprintf("title must be at most %d characters", domain.MaxTitleLen))
	}
	if len(input.Comment) > domain.MaxCommentLen {
		return nil, apperrors.InvalidInput(fmt.Sprintf("comment must be at most %d characters", domain.MaxCommentLen))
	}

	review, err := s.reviewRepo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("get review for update: %w", err)
	}

	if review.UserID != userID {
		return nil, apperrors.Unauthorized("review does not belong to the caller")
	}

	review.Rating = input.Rating
	review.Title = input.Title
	review.Comment = input.Comment
	review.UpdatedAt = time.Now().UTC()

	if err := s.reviewRepo.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.invalidateSummary(ctx, review.ProductID)

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", review.ID),
		slog.Int("rating", review.Rating),
	)

	return review, nil
}

// DeleteReview removes the caller's own review and recomputes the product
// aggregate.
func (s *ReviewService) DeleteReview(ctx context.Context, userID, reviewID string) error {
	review, err := s.reviewRepo.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review for delete: %w", err)
	}

	if review.UserID != userID {
		return apperrors.Unauthorized("review does not belong to the caller")
	}

	if err := s.reviewRepo.Delete(ctx, reviewID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.invalidateSummary(ctx, review.ProductID)

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", reviewID),
		slog.String("product_id", review.ProductID),
	)

	return nil
}

// ToggleHelpful records or reverses a helpful vote on a review.
func (s *ReviewService) ToggleHelpful(ctx context.Context, userID, reviewID string) (bool, int, error) {
	if userID == "" {
		return false, 0, domain.ErrMissingField("user_id")
	}

	voted, count, err := s.reviewRepo.ToggleHelpful(ctx, reviewID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("toggle helpful vote: %w", err)
	}

	return voted, count, nil
}

// ListReviews returns the product's reviews with the aggregate summary. The
// summary is served from cache when possible.
func (s *ReviewService) ListReviews(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, int, *domain.ReviewSummary, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	reviews, total, err := s.reviewRepo.ListByProduct(ctx, filter)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("list reviews: %w", err)
	}

	summary, err := s.getSummary(ctx, filter.ProductID)
	if err != nil {
		return nil, 0, nil, err
	}

	return reviews, total, summary, nil
}

// getSummary reads the summary through the cache, recomputing on a miss.
func (s *ReviewService) getSummary(ctx context.Context, productID string) (*domain.ReviewSummary, error) {
	if s.cache != nil {
		summary, err := s.cache.Get(ctx, productID)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "review summary cache read failed",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}

	summary, err := s.reviewRepo.Summary(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("compute review summary: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, productID, summary); err != nil {
			s.logger.WarnContext(ctx, "review summary cache write failed",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}

	return summary, nil
}

// invalidateSummary drops the cached summary; a cache failure is logged and
// swallowed because the TTL bounds the staleness anyway.
func (s *ReviewService) invalidateSummary(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.WarnContext(ctx, "review summary cache invalidation failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}
