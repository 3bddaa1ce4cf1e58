package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/szegedss/ecommerce-mern-sub000/internal/service"
	"github.com/szegedss/ecommerce-mern-sub000/pkg/health"
	"github.com/szegedss/ecommerce-mern-sub000/pkg/middleware"
)

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	orderService *service.OrderService,
	reviewService *service.ReviewService,
	gate *service.ConfirmationGate,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsOrigins []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.RequestLogger(logger))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = corsOrigins
	r.Use(middleware.CORS(corsCfg))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	orderHandler := NewOrderHandler(orderService, gate, logger)
	reviewHandler := NewReviewHandler(reviewService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Put("/{id}/status", orderHandler.UpdateOrderStatus)
			r.Put("/{id}/payment", orderHandler.UpdatePaymentStatus)
			r.Post("/{id}/cancel", orderHandler.CancelOrder)

			// Buyer-facing confirmation requires the gateway identity header.
			r.With(UserIDFromHeader).Post("/{id}/confirm-delivery", orderHandler.ConfirmDelivery)
		})

		r.Route("/products/{productID}/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.ListReviews)
			r.With(UserIDFromHeader).Get("/eligibility", reviewHandler.GetEligibility)
			r.With(UserIDFromHeader).Post("/", reviewHandler.CreateReview)
		})

		r.Route("/reviews/{id}", func(r chi.Router) {
			r.Use(UserIDFromHeader)

			r.Put("/", reviewHandler.UpdateReview)
			r.Delete("/", reviewHandler.DeleteReview)
			r.Post("/helpful", reviewHandler.ToggleHelpful)
		})
	})

	return r
}
