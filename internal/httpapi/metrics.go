package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

var (
	labels = []string{"path", "method", "status"}

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patchscope",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status",
	}, labels)

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patchscope",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.005, .025, .1, .25, 1, 2.5, 5, 10, 30, 60, 120},
	}, labels)

	httpResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patchscope",
		Subsystem: "http",
		Name:      "response_bytes",
		Help:      "Response body size in bytes",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"path"})

	httpInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patchscope",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served",
	}, []string{"method"})

	backpressureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patchscope",
		Subsystem: "http",
		Name:      "backpressure_total",
		Help:      "Requests rejected with 429",
	}, []string{"reason"})
)

// MetricsMiddleware records count, latency and size per route pattern. The
// pattern is only known after routing, so the inflight gauge uses the method.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routeLabel(r)
		code := strconv.Itoa(status)
		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, code).Observe(time.Since(start).Seconds())
		httpResponseBytes.WithLabelValues(path).Observe(float64(ww.BytesWritten()))
	})
}

// routeLabel is the chi route pattern. Requests that reached a router but
// matched nothing share one label; without a router the URL path is used.
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return r.URL.Path
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

// IncrementBackpressure counts a 429 response.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
