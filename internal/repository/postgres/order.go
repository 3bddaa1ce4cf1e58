package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	"github.com/szegedss/ecommerce-mern-sub000/pkg/database"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order, its items, and the initial timeline entry, and
// decrements product stock, all within a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	orderQuery := `
		INSERT INTO orders (id, user_id, status, payment_status, subtotal_amount, total_amount, currency, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(ctx, orderQuery,
		o.ID,
		o.UserID,
		o.Status,
		o.PaymentStatus,
		o.SubtotalAmount,
		o.TotalAmount,
		o.Currency,
		o.Notes,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// The stock update is conditional on availability so an oversell loses
	// here rather than at reconciliation time.
	stockQuery := `
		UPDATE products
		SET stock = stock - $1, sold_count = sold_count + $1, updated_at = $2
		WHERE id = $3 AND stock >= $1`

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		ct, err := tx.Exec(ctx, stockQuery, item.Quantity, o.CreatedAt, item.ProductID)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.Conflict("INSUFFICIENT_STOCK",
				fmt.Sprintf("insufficient stock for product %s", item.ProductID))
		}
	}

	timelineQuery := `
		INSERT INTO order_timeline (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err = tx.Exec(ctx, timelineQuery, o.ID, o.Status, "order placed", o.CreatedAt); err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an order by its ID, eagerly loading items and the status
// timeline.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	// Fetch order and items in a single query using LEFT JOIN + JSONB_AGG to
	// avoid the N+1 problem.
	orderQuery := `
		SELECT
			o.id, o.user_id, o.status, o.payment_status, o.subtotal_amount,
			o.total_amount, o.currency, o.notes, o.shipped_at, o.delivered_at,
			o.delivery_confirmed, o.delivery_confirmed_at, o.created_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'order_id', oi.order_id,
						'product_id', oi.product_id,
						'name', oi.name,
						'price', oi.price,
						'quantity', oi.quantity
					) ORDER BY oi.id
				) FILTER (WHERE oi.id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE o.id = $1
		GROUP BY o.id, o.user_id, o.status, o.payment_status, o.subtotal_amount,
			o.total_amount, o.currency, o.notes, o.shipped_at, o.delivered_at,
			o.delivery_confirmed, o.delivery_confirmed_at, o.created_at, o.updated_at`

	var (
		o         domain.Order
		itemsJSON []byte
	)

	err := r.pool.QueryRow(ctx, orderQuery, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.SubtotalAmount,
		&o.TotalAmount,
		&o.Currency,
		&o.Notes,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.DeliveryConfirmed,
		&o.DeliveryConfirmedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if len(itemsJSON) > 0 && string(itemsJSON) != "null" && string(itemsJSON) != "[]" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	} else {
		o.Items = []domain.OrderItem{}
	}

	timeline, err := r.loadTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Timeline = timeline

	return &o, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   int = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Use count(*) OVER() for total count in a single query.
	query := fmt.Sprintf(`
		SELECT id, user_id, status, payment_status, subtotal_amount, total_amount, currency, notes,
			   shipped_at, delivered_at, delivery_confirmed, delivery_confirmed_at, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var o domain.Order

		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.PaymentStatus,
			&o.SubtotalAmount,
			&o.TotalAmount,
			&o.Currency,
			&o.Notes,
			&o.ShippedAt,
			&o.DeliveredAt,
			&o.DeliveryConfirmed,
			&o.DeliveryConfirmedAt,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, totalCount, nil
}

// TransitionStatus performs a compare-and-set status change, appends the
// timeline entry, stamps the fulfillment timestamps, and restores stock on
// cancellation, all in one transaction.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id, from, to, note string, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var extra string
	switch to {
	case domain.OrderStatusShipped:
		// First shipped transition only; the field is never overwritten.
		extra = ", shipped_at = COALESCE(shipped_at, $3)"
	case domain.OrderStatusDelivered:
		extra = ", delivered_at = COALESCE(delivered_at, $3)"
	}

	updateQuery := fmt.Sprintf(`
		UPDATE orders
		SET status = $1, updated_at = $3%s
		WHERE id = $2 AND status = $4`, extra)

	ct, err := tx.Exec(ctx, updateQuery, to, id, now, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// Either the order is gone or a concurrent transition won the race.
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrderNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("read current status: %w", err)
		}
		return domain.ErrInvalidTransition(current, to)
	}

	timelineQuery := `
		INSERT INTO order_timeline (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, timelineQuery, id, to, note, now); err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}

	if to == domain.OrderStatusCancelled {
		// Quantities are summed per product before the join. UPDATE ... FROM
		// applies at most one joined row per target, so an order with two
		// lines for the same product would otherwise restore only one of them.
		restoreQuery := `
			UPDATE products p
			SET stock = p.stock + oi.qty,
				sold_count = p.sold_count - oi.qty,
				updated_at = $2
			FROM (
				SELECT product_id, SUM(quantity) AS qty
				FROM order_items
				WHERE order_id = $1
				GROUP BY product_id
			) oi
			WHERE p.id = oi.product_id`

		if _, err := tx.Exec(ctx, restoreQuery, id, now); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// UpdatePaymentStatus sets the payment status of an order.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) error {
	query := `
		UPDATE orders
		SET payment_status = $1, updated_at = $2
		WHERE id = $3`

	ct, err := r.pool.Exec(ctx, query, paymentStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound(id)
	}

	return nil
}

// ConfirmDelivery marks a delivered order as confirmed. The condition on
// delivery_confirmed makes repeat calls no-ops, so delivery_confirmed_at is
// written at most once.
func (r *OrderRepository) ConfirmDelivery(ctx context.Context, id string, confirmedAt time.Time) (won bool, err error) {
	query := `
		UPDATE orders
		SET delivery_confirmed = true, delivery_confirmed_at = $2, updated_at = $2
		WHERE id = $1 AND status = $3 AND delivery_confirmed = false`

	ctx, end := database.TraceQuery(ctx, "ConfirmDelivery", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, id, confirmedAt, domain.OrderStatusDelivered)
	if err != nil {
		return false, fmt.Errorf("confirm delivery: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// ListDeliveredByUserAndProduct returns the user's delivered orders that
// contain the given product, oldest delivery first, with items loaded.
func (r *OrderRepository) ListDeliveredByUserAndProduct(ctx context.Context, userID, productID string) ([]domain.Order, error) {
	query := `
		SELECT id, user_id, status, payment_status, subtotal_amount, total_amount, currency, notes,
			   shipped_at, delivered_at, delivery_confirmed, delivery_confirmed_at, created_at, updated_at
		FROM orders o
		WHERE o.user_id = $1
		  AND o.status = $2
		  AND EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.product_id = $3)
		ORDER BY o.delivered_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, domain.OrderStatusDelivered, productID)
	if err != nil {
		return nil, fmt.Errorf("list delivered orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)

	for rows.Next() {
		var o domain.Order

		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.PaymentStatus,
			&o.SubtotalAmount,
			&o.TotalAmount,
			&o.Currency,
			&o.Notes,
			&o.ShippedAt,
			&o.DeliveredAt,
			&o.DeliveryConfirmed,
			&o.DeliveryConfirmedAt,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// attachItems batch-loads line items for all orders in a single query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	orderIDs := make([]string, len(orders))
	for i := range orders {
		orderIDs[i] = orders[i].ID
	}

	itemsQuery := `
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`

	itemRows, err := r.pool.Query(ctx, itemsQuery, orderIDs)
	if err != nil {
		return fmt.Errorf("batch load order items: %w", err)
	}
	defer itemRows.Close()

	itemsByOrderID := make(map[string][]domain.OrderItem, len(orders))
	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		itemsByOrderID[item.OrderID] = append(itemsByOrderID[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate batch order item rows: %w", err)
	}

	for i := range orders {
		if items, ok := itemsByOrderID[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return nil
}

// loadTimeline retrieves the append-only status timeline of an order.
func (r *OrderRepository) loadTimeline(ctx context.Context, orderID string) ([]domain.TimelineEntry, error) {
	query := `
		SELECT status, note, created_at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order timeline: %w", err)
	}
	defer rows.Close()

	var timeline []domain.TimelineEntry
	for rows.Next() {
		var entry domain.TimelineEntry
		if err := rows.Scan(&entry.Status, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		timeline = append(timeline, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline rows: %w", err)
	}

	if timeline == nil {
		timeline = []domain.TimelineEntry{}
	}

	return timeline, nil
}
