package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	"github.com/szegedss/ecommerce-mern-sub000/pkg/database"
)

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review and recomputes the product's rating aggregate in
// the same transaction. The unique constraint on (product_id, user_id,
// order_id) is the authority on duplicates.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO reviews (id, product_id, user_id, order_id, rating, title, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, query,
		review.ID,
		review.ProductID,
		review.UserID,
		review.OrderID,
		review.Rating,
		review.Title,
		review.Comment,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReview(review.ProductID, review.OrderID)
		}
		return fmt.Errorf("insert review: %w", err)
	}

	if err := recomputeProductRating(ctx, tx, review.ProductID, review.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a review by its ID, including the helpful vote count.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	query := `
		SELECT r.id, r.product_id, r.user_id, r.order_id, r.rating, r.title, r.comment,
			   (SELECT COUNT(*) FROM review_helpful_votes v WHERE v.review_id = r.id) AS helpful_count,
			   r.created_at, r.updated_at
		FROM reviews r
		WHERE r.id = $1`

	var rv domain.Review

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rv.ID,
		&rv.ProductID,
		&rv.UserID,
		&rv.OrderID,
		&rv.Rating,
		&rv.Title,
		&rv.Comment,
		&rv.HelpfulCount,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReviewNotFound(id)
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}

	return &rv, nil
}

// Update persists rating, title, and comment changes and recomputes the
// product's rating aggregate in the same transaction.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reviews
		SET rating = $1, title = $2, comment = $3, updated_at = $4
		WHERE id = $5`

	ct, err := tx.Exec(ctx, query, review.Rating, review.Title, review.Comment, review.UpdatedAt, review.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrReviewNotFound(review.ID)
	}

	if err := recomputeProductRating(ctx, tx, review.ProductID, review.UpdatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Delete removes a review and recomputes the product's rating aggregate in
// the same transaction.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID string
	err = tx.QueryRow(ctx, `DELETE FROM reviews WHERE id = $1 RETURNING product_id`, id).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrReviewNotFound(id)
		}
		return fmt.Errorf("delete review: %w", err)
	}

	if err := recomputeProductRating(ctx, tx, productID, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ListByProduct returns paginated reviews for a product with the total count.
func (r *ReviewRepository) ListByProduct(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	query := `
		SELECT r.id, r.product_id, r.user_id, r.order_id, r.rating, r.title, r.comment,
			   (SELECT COUNT(*) FROM review_helpful_votes v WHERE v.review_id = r.id) AS helpful_count,
			   r.created_at, r.updated_at,
			   count(*) OVER() AS total_count
		FROM reviews r
		WHERE r.product_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, filter.ProductID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var (
		reviews    []domain.Review
		totalCount int
	)

	for rows.Next() {
		var rv domain.Review

		if err := rows.Scan(
			&rv.ID,
			&rv.ProductID,
			&rv.UserID,
			&rv.OrderID,
			&rv.Rating,
			&rv.Title,
			&rv.Comment,
			&rv.HelpfulCount,
			&rv.CreatedAt,
			&rv.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}

		reviews = append(reviews, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	if reviews == nil {
		reviews = []domain.Review{}
	}

	return reviews, totalCount, nil
}

// ExistsForOrder reports whether the user has already reviewed the product
// for the given order.
func (r *ReviewRepository) ExistsForOrder(ctx context.Context, productID, userID, orderID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM reviews
			WHERE product_id = $1 AND user_id = $2 AND order_id = $3
		)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, productID, userID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check review existence: %w", err)
	}

	return exists, nil
}

// Summary computes the average rating and total count of reviews for a product.
func (r *ReviewRepository) Summary(ctx context.Context, productID string) (*domain.ReviewSummary, error) {
	query := `
		SELECT COALESCE(AVG(rating), 0), COUNT(*)
		FROM reviews
		WHERE product_id = $1`

	var summary domain.ReviewSummary

	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&summary.AverageRating,
		&summary.TotalCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get review summary: %w", err)
	}

	// Round average rating to one decimal place.
	summary.AverageRating = math.Round(summary.AverageRating*10) / 10

	return &summary, nil
}

// ToggleHelpful records a helpful vote, or reverses an existing one, and
// returns the resulting vote state and count.
func (r *ReviewRepository) ToggleHelpful(ctx context.Context, reviewID, userID string) (bool, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviews WHERE id = $1)`, reviewID).Scan(&exists); err != nil {
		return false, 0, fmt.Errorf("check review existence: %w", err)
	}
	if !exists {
		return false, 0, domain.ErrReviewNotFound(reviewID)
	}

	insertQuery := `
		INSERT INTO review_helpful_votes (review_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (review_id, user_id) DO NOTHING`

	ct, err := tx.Exec(ctx, insertQuery, reviewID, userID, time.Now().UTC())
	if err != nil {
		return false, 0, fmt.Errorf("insert helpful vote: %w", err)
	}

	voted := ct.RowsAffected() > 0
	if !voted {
		// Second call reverses the vote.
		deleteQuery := `DELETE FROM review_helpful_votes WHERE review_id = $1 AND user_id = $2`
		if _, err := tx.Exec(ctx, deleteQuery, reviewID, userID); err != nil {
			return false, 0, fmt.Errorf("delete helpful vote: %w", err)
		}
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM review_helpful_votes WHERE review_id = $1`, reviewID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("count helpful votes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit transaction: %w", err)
	}

	return voted, count, nil
}

// recomputeProductRating rescans the product's reviews and writes the
// aggregate back to the products row inside the caller's transaction.
func recomputeProductRating(ctx context.Context, tx pgx.Tx, productID string, now time.Time) error {
	query := `
		UPDATE products p
		SET rating = sub.avg_rating,
			review_count = sub.review_count,
			updated_at = $2
		FROM (
			SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0) AS avg_rating, COUNT(*) AS review_count
			FROM reviews
			WHERE product_id = $1
		) sub
		WHERE p.id = $1`

	if _, err := tx.Exec(ctx, query, productID, now); err != nil {
		return fmt.Errorf("recompute product rating: %w", err)
	}

	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
