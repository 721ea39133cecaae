// Package metrics holds the Prometheus collectors for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "girandola_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "girandola_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	MarkersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "girandola_markers_created_total",
			Help: "Total number of markers saved",
		},
	)

	MarkerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "girandola_marker_rejections_total",
			Help: "Marker submissions refused, by reason",
		},
		[]string{"reason"}, // "unauthorized", "invalid_payload", "store_error"
	)

	StoreUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "girandola_store_up",
			Help: "1 when the last storage ping succeeded",
		},
	)

	SignIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "girandola_sign_ins_total",
			Help: "Completed sign-ins by method",
		},
		[]string{"method", "result"},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRejection counts a refused marker submission.
func RecordRejection(reason string) {
	MarkerRejections.WithLabelValues(reason).Inc()
}

// SetStoreUp records the outcome of a storage ping.
func SetStoreUp(up bool) {
	if up {
		StoreUp.Set(1)
		return
	}
	StoreUp.Set(0)
}

// RecordSignIn counts a sign-in attempt.
func RecordSignIn(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SignIns.WithLabelValues(method, result).Inc()
}

// Middleware records request counts and latency labelled by chi route
// pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
