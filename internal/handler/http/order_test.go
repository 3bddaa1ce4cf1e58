package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/szegedss/ecommerce-mern-sub000/internal/domain"
	"github.com/szegedss/ecommerce-mern-sub000/internal/event"
	"github.com/szegedss/ecommerce-mern-sub000/internal/repository"
	"github.com/szegedss/ecommerce-mern-sub000/internal/service"
	apperrors "github.com/szegedss/ecommerce-mern-sub000/pkg/errors"
	"github.com/szegedss/ecommerce-mern-sub000/pkg/httputil"
	pkgkafka "github.com/szegedss/ecommerce-mern-sub000/pkg/kafka"
)

const (
	testOrderID   = "550e8400-e29b-41d4-a716-446655440001"
	testUserID    = "550e8400-e29b-41d4-a716-446655440002"
	testProductID = "550e8400-e29b-41d4-a716-446655440020"
	testReviewID  = "550e8400-e29b-41d4-a716-446655440030"
)

// --- Mock OrderRepository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) TransitionStatus(ctx context.Context, id, from, to, note string, now time.Time) error {
	args := m.Called(ctx, id, from, to, note, now)
	return args.Error(0)
}

func (m *mockOrderRepository) UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) error {
	args := m.Called(ctx, id, paymentStatus)
	return args.Error(0)
}

func (m *mockOrderRepository) ConfirmDelivery(ctx context.Context, id string, confirmedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, confirmedAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) ListDeliveredByUserAndProduct(ctx context.Context, userID, productID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

// --- Mock ProductRepository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Product), args.Error(1)
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:19092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func testOrderHandler(orderRepo *mockOrderRepository, productRepo *mockProductRepository) *OrderHandler {
	logger := testLogger()
	producer := testEventProducer()
	svc := service.NewOrderService(orderRepo, productRepo, producer, logger)
	gate := service.NewConfirmationGate(orderRepo, producer, logger, 24*time.Hour)
	return NewOrderHandler(svc, gate, logger)
}

// setupOrderRouter creates a chi router matching the production route layout.
func setupOrderRouter(handler *OrderHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{id}", handler.GetOrder)
		r.Put("/{id}/status", handler.UpdateOrderStatus)
		r.Put("/{id}/payment", handler.UpdatePaymentStatus)
		r.Post("/{id}/cancel", handler.CancelOrder)
		r.With(UserIDFromHeader).Post("/{id}/confirm-delivery", handler.ConfirmDelivery)
	})
	return r
}

// decodeResponse reads the response body into the httputil.Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

// sampleOrder returns a realistic order for use in test expectations.
func sampleOrder() *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:            testOrderID,
		UserID:        testUserID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.OrderItem{
			{
				ID:        "550e8400-e29b-41d4-a716-446655440010",
				OrderID:   testOrderID,
				ProductID: testProductID,
				Name:      "Walnut Desk",
				Price:     24900,
				Quantity:  2,
			},
		},
		SubtotalAmount: 49800,
		TotalAmount:    49800,
		Currency:       "USD",
		Notes:          "Leave at door",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// validCreateOrderJSON returns a valid JSON body for POST /api/v1/orders.
func validCreateOrderJSON() []byte {
	body := CreateOrderRequest{
		UserID: testUserID,
		Items: []CreateOrderItemRequest{
			{ProductID: testProductID, Quantity: 2},
		},
		Currency: "USD",
		Notes:    "Leave at door",
	}
	b, _ := json.Marshal(body)
	return b
}

// ============================================================================
// POST /api/v1/orders - CreateOrder
// ============================================================================

func TestCreateOrder_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	productRepo := new(mockProductRepository)
	handler := testOrderHandler(orderRepo, productRepo)
	router := setupOrderRouter(handler)

	productRepo.On("GetByIDs", mock.Anything, []string{testProductID}).
		Return(map[string]domain.Product{
			testProductID: {ID: testProductID, Name: "Walnut Desk", Price: 24900, Stock: 10},
		}, nil)
	orderRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(validCreateOrderJSON()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Data)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, testUserID, data["user_id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "USD", data["currency"])
	assert.Equal(t, float64(49800), data["total_amount"])

	orderRepo.AssertExpectations(t)
	productRepo.AssertExpectations(t)
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte(`{invalid json`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid request body")
}

func TestCreateOrder_ValidationError_NoItems(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	body := CreateOrderRequest{
		UserID:   testUserID,
		Items:    []CreateOrderItemRequest{},
		Currency: "USD",
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.NotNil(t, resp.Error.Fields)
}

func TestCreateOrder_ValidationError_MissingUserID(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	body := CreateOrderRequest{
		Items: []CreateOrderItemRequest{
			{ProductID: testProductID, Quantity: 1},
		},
		Currency: "USD",
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	productRepo := new(mockProductRepository)
	handler := testOrderHandler(orderRepo, productRepo)
	router := setupOrderRouter(handler)

	productRepo.On("GetByIDs", mock.Anything, []string{testProductID}).
		Return(map[string]domain.Product{
			testProductID: {ID: testProductID, Name: "Walnut Desk", Price: 24900, Stock: 1},
		}, nil)
	orderRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).
		Return(apperrors.Conflict("INSUFFICIENT_STOCK", "insufficient stock for product "+testProductID))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(validCreateOrderJSON()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)

	orderRepo.AssertExpectations(t)
}

// ============================================================================
// GET /api/v1/orders - ListOrders
// ============================================================================

func TestListOrders_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	expectedFilter := repository.OrderFilter{Page: 1, PerPage: 20}
	orderRepo.On("List", mock.Anything, expectedFilter).
		Return([]domain.Order{*sampleOrder()}, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var paginatedResp struct {
		Data       []map[string]interface{} `json:"data"`
		TotalCount int                      `json:"total_count"`
		Page       int                      `json:"page"`
		PerPage    int                      `json:"per_page"`
		HasNext    bool                     `json:"has_next"`
	}
	err := json.NewDecoder(rec.Body).Decode(&paginatedResp)
	require.NoError(t, err)
	assert.Equal(t, 1, paginatedResp.TotalCount)
	assert.Equal(t, 1, paginatedResp.Page)
	assert.Equal(t, 20, paginatedResp.PerPage)
	assert.False(t, paginatedResp.HasNext)
	assert.Len(t, paginatedResp.Data, 1)

	orderRepo.AssertExpectations(t)
}

func TestListOrders_WithFilters(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	userID := testUserID
	status := "delivered"
	expectedFilter := repository.OrderFilter{
		Page:    2,
		PerPage: 10,
		UserID:  &userID,
		Status:  &status,
	}
	orderRepo.On("List", mock.Anything, expectedFilter).
		Return([]domain.Order{}, 25, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/orders?page=2&per_page=10&user_id="+testUserID+"&status=delivered", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	orderRepo.AssertExpectations(t)
}

func TestListOrders_IgnoresMalformedPagination(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	// Unparseable or out-of-range values fall back to defaults.
	expectedFilter := repository.OrderFilter{Page: 1, PerPage: 20}
	orderRepo.On("List", mock.Anything, expectedFilter).
		Return([]domain.Order{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=abc&per_page=9000", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	orderRepo.AssertExpectations(t)
}

func TestListOrders_InvalidStatusFilter(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=bogus", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

// ============================================================================
// GET /api/v1/orders/{id} - GetOrder
// ============================================================================

func TestGetOrder_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, order.ID, data["id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(49800), data["total_amount"])

	orderRepo.AssertExpectations(t)
}

func TestGetOrder_InvalidUUID(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	orderID := "550e8400-e29b-41d4-a716-446655440099"
	orderRepo.On("GetByID", mock.Anything, orderID).Return(nil, apperrors.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ORDER_NOT_FOUND", resp.Error.Code)

	orderRepo.AssertExpectations(t)
}

// ============================================================================
// PUT /api/v1/orders/{id}/status - UpdateOrderStatus
// ============================================================================

func TestUpdateOrderStatus_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	updated := sampleOrder()
	updated.Status = domain.OrderStatusProcessing

	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()
	orderRepo.On("TransitionStatus", mock.Anything, order.ID,
		domain.OrderStatusPending, domain.OrderStatusProcessing, "picking started", mock.Anything).Return(nil)
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(updated, nil).Once()

	body, _ := json.Marshal(UpdateStatusRequest{Status: "processing", Note: "picking started"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+order.ID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "processing", data["status"])

	orderRepo.AssertExpectations(t)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "nonexistent_status"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+testOrderID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	order.Status = domain.OrderStatusDelivered
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "shipped"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+order.ID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)

	orderRepo.AssertExpectations(t)
}

// ============================================================================
// PUT /api/v1/orders/{id}/payment - UpdatePaymentStatus
// ============================================================================

func TestUpdatePaymentStatus_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	order.PaymentStatus = domain.PaymentStatusCompleted

	orderRepo.On("UpdatePaymentStatus", mock.Anything, order.ID, "completed").Return(nil)
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	body, _ := json.Marshal(UpdatePaymentRequest{PaymentStatus: "completed"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+order.ID+"/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", data["payment_status"])

	orderRepo.AssertExpectations(t)
}

func TestUpdatePaymentStatus_UnknownValue(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	body, _ := json.Marshal(UpdatePaymentRequest{PaymentStatus: "refused"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+testOrderID+"/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// ============================================================================
// POST /api/v1/orders/{id}/cancel - CancelOrder
// ============================================================================

func TestCancelOrder_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	cancelled := sampleOrder()
	cancelled.Status = domain.OrderStatusCancelled

	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()
	orderRepo.On("TransitionStatus", mock.Anything, order.ID,
		domain.OrderStatusPending, domain.OrderStatusCancelled, "changed my mind", mock.Anything).Return(nil)
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(cancelled, nil).Once()

	body, _ := json.Marshal(CancelOrderRequest{Reason: "changed my mind"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cancelled", data["status"])

	orderRepo.AssertExpectations(t)
}

func TestCancelOrder_NilBody(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	cancelled := sampleOrder()
	cancelled.Status = domain.OrderStatusCancelled

	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()
	orderRepo.On("TransitionStatus", mock.Anything, order.ID,
		domain.OrderStatusPending, domain.OrderStatusCancelled, "", mock.Anything).Return(nil)
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(cancelled, nil).Once()

	// Nil body should be handled gracefully by the cancel handler.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	orderRepo.AssertExpectations(t)
}

func TestCancelOrder_Terminal(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	order.Status = domain.OrderStatusDelivered
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)

	orderRepo.AssertExpectations(t)
}

// ============================================================================
// POST /api/v1/orders/{id}/confirm-delivery - ConfirmDelivery
// ============================================================================

func TestConfirmDelivery_Success(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	deliveredAt := time.Now().UTC().Add(-time.Hour)
	order := sampleOrder()
	order.Status = domain.OrderStatusDelivered
	order.DeliveredAt = &deliveredAt

	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	orderRepo.On("ConfirmDelivery", mock.Anything, order.ID, mock.Anything).Return(true, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/confirm-delivery", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["delivery_confirmed"])

	orderRepo.AssertExpectations(t)
}

func TestConfirmDelivery_MissingIdentity(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+testOrderID+"/confirm-delivery", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestConfirmDelivery_NotOwner(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	deliveredAt := time.Now().UTC().Add(-time.Hour)
	order := sampleOrder()
	order.Status = domain.OrderStatusDelivered
	order.DeliveredAt = &deliveredAt

	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/confirm-delivery", nil)
	req.Header.Set("X-User-ID", "550e8400-e29b-41d4-a716-446655440077")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestConfirmDelivery_NotDelivered(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	handler := testOrderHandler(orderRepo, new(mockProductRepository))
	router := setupOrderRouter(handler)

	order := sampleOrder()
	order.Status = domain.OrderStatusShipped
	orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID+"/confirm-delivery", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_DELIVERED", resp.Error.Code)

	orderRepo.AssertExpectations(t)
}

// ============================================================================
// ContentTypeJSON middleware tests
// ============================================================================

func TestContentTypeJSON_RejectsXML(t *testing.T) {
	handler := testOrderHandler(new(mockOrderRepository), new(mockProductRepository))
	router := setupOrderRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte(`<xml/>`)))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestContentTypeJSON_AcceptsApplicationJSON(t *testing.T) {
	orderRepo := new(mockOrderRepository)
	productRepo := new(mockProductRepository)
	handler := testOrderHandler(orderRepo, productRepo)
	router := setupOrderRouter(handler)

	productRepo.On("GetByIDs", mock.Anything, []string{testProductID}).
		Return(map[string]domain.Product{
			testProductID: {ID: testProductID, Name: "Walnut Desk", Price: 24900, Stock: 10},
		}, nil)
	orderRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(validCreateOrderJSON()))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	orderRepo.AssertExpectations(t)
}
