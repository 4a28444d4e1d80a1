package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyflow_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyflow_order_transitions_total",
			Help: "Committed order changes by action and resulting status",
		},
		[]string{"action", "status"},
	)

	CompletedRevenueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyflow_completed_revenue_rub_total",
			Help: "Amount of completed orders by payment method",
		},
		[]string{"method"},
	)
)

// Hook counts order changes.
type Hook struct{}

func (Hook) OrderChanged(_ context.Context, action string, order entities.Order) {
	OrderTransitionsTotal.WithLabelValues(action, order.Status).Inc()

	if order.Status == entities.OrderStatusCompleted {
		amount, _ := order.Amount.Float64()
		CompletedRevenueTotal.WithLabelValues(order.PaymentMethod).Add(amount)
	}
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(res, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		path := req.URL.Path
		if routeContext := chi.RouteContext(req.Context()); routeContext != nil && routeContext.RoutePattern() != "" {
			path = routeContext.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
		ResponseTimeHistogram.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
	})
}
