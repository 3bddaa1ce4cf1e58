package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szegedss/ecommerce-mern-sub000/pkg/database"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
)

func newTestProductRepo(t *testing.T) (*ProductRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewProductRepository(mock)
	return repo, mock
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	repo, mock := newTestProductRepo(t)
	defer mock.ExpectationsWereMet()

	now := time.Now().UTC().Truncate(time.Microsecond)

	rows := pgxmock.NewRows([]string{
		"id", "name", "price", "stock", "sold_count", "rating", "review_count",
		"created_at", "updated_at",
	}).AddRow("prod-001", "Widget", int64(5000), 12, 88, 4.3, 15, now, now)

	mock.ExpectQuery("SELECT").
		WithArgs("prod-001").
		WillReturnRows(rows)

	p, err := repo.GetByID(context.Background(), "prod-001")
	require.NoError(t, err)

	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 12, p.Stock)
	assert.Equal(t, 4.3, p.Rating)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newTestProductRepo(t)
	defer mock.ExpectationsWereMet()

	mock.ExpectQuery("SELECT").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	p, err := repo.GetByID(context.Background(), "ghost")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByIDs_MissingIDsAbsent(t *testing.T) {
	repo, mock := newTestProductRepo(t)
	defer mock.ExpectationsWereMet()

	now := time.Now().UTC().Truncate(time.Microsecond)

	rows := pgxmock.NewRows([]string{
		"id", "name", "price", "stock", "sold_count", "rating", "review_count",
		"created_at", "updated_at",
	}).AddRow("prod-001", "Widget", int64(5000), 12, 88, 4.3, 15, now, now)

	mock.ExpectQuery("SELECT").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	products, err := repo.GetByIDs(context.Background(), []string{"prod-001", "prod-404"})
	require.NoError(t, err)

	require.Len(t, products, 1)
	_, ok := products["prod-001"]
	assert.True(t, ok)
	_, ok = products["prod-404"]
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByIDs_EmptyInput(t *testing.T) {
	repo, mock := newTestProductRepo(t)
	defer mock.ExpectationsWereMet()

	// No query expected.
	products, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)

	assert.NoError(t, mock.ExpectationsWereMet())
}
