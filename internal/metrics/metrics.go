// Package metrics holds the engine-side Prometheus collectors. HTTP metrics
// live in httpapi.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patchscope",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Analysis operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patchscope",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of analysis operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patchscope",
			Subsystem: "engine",
			Name:      "tokens_total",
			Help:      "Tokens processed, split into prompt and generated",
		},
		[]string{"kind"},
	)

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "patchscope",
		Subsystem: "engine",
		Name:      "queue_depth",
		Help:      "Requests holding a queue slot",
	})

	inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "patchscope",
		Subsystem: "engine",
		Name:      "inflight",
		Help:      "Requests currently running on the model",
	})

	modelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "patchscope",
		Subsystem: "engine",
		Name:      "model_loaded",
		Help:      "1 when a model is loaded",
	})
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, tokensTotal, queueDepth, inflight, modelLoaded)
}

// ObserveOp records one finished operation.
func ObserveOp(op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// AddTokens counts prompt or generated tokens.
func AddTokens(kind string, n int) {
	if n > 0 {
		tokensTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// QueueEnter and QueueLeave track queue occupancy.
func QueueEnter() { queueDepth.Inc() }
func QueueLeave() { queueDepth.Dec() }

// InflightEnter and InflightLeave track running requests.
func InflightEnter() { inflight.Inc() }
func InflightLeave() { inflight.Dec() }

// SetModelLoaded flips the model_loaded gauge.
func SetModelLoaded(ok bool) {
	if ok {
		modelLoaded.Set(1)
		return
	}
	modelLoaded.Set(0)
}
