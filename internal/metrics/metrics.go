package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Payment provider webhook events by type and handling result",
		},
		[]string{"type", "result"},
	)

	sideEffects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_side_effects_total",
			Help: "Outcomes of order side effects (invoice, admin notification, persistence, events)",
		},
		[]string{"effect", "result"},
	)

	storageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_storage_fallbacks_total",
			Help: "Operations served by the in-memory store because the primary backend failed",
		},
		[]string{"operation"},
	)
)

// Middleware собирает метрики по шаблону маршрута chi, а не по сырому пути,
// чтобы orderId не раздувал кардинальность.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		httpRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordOrderOperation(operation string, success bool) {
	orderOperations.WithLabelValues(operation, result(success)).Inc()
}

func RecordWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func RecordSideEffect(effect string, success bool) {
	sideEffects.WithLabelValues(effect, result(success)).Inc()
}

func RecordStorageFallback(operation string) {
	storageFallbacks.WithLabelValues(operation).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
