// Package metrics exposes Prometheus metrics for the feed pipeline, order-
// book engine, and persistence/archive cycle over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dtfeed_adapter_decode_latency_milliseconds",
			Help:    "Time to JSON-decode one exchange frame's envelope",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		},
		[]string{"exchange"},
	)

	bookApplyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dtfeed_book_apply_latency_microseconds",
			Help:    "Time to apply one delta to an order-book instance",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"exchange", "symbol"},
	)

	deltasEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtfeed_deltas_emitted_total",
			Help: "Deltas published to pub/sub, by exchange",
		},
		[]string{"exchange"},
	)

	deltasDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtfeed_deltas_dropped_total",
			Help: "Deltas dropped before publish (decode/protocol/state errors), by exchange and reason",
		},
		[]string{"exchange", "reason"},
	)

	wsConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dtfeed_websocket_connected",
			Help: "WebSocket connection state by exchange (1=connected, 0=disconnected)",
		},
		[]string{"exchange"},
	)

	tickstoreConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dtfeed_tickstore_connected",
			Help: "Tick-store connection state (1=connected, 0=disconnected)",
		},
	)

	archiveCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dtfeed_archive_cycle_duration_seconds",
			Help:    "Duration of one tar/xz/upload archive cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	archiveCycleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtfeed_archive_cycle_errors_total",
			Help: "Archive cycles that failed before or during upload",
		},
	)
)

// ObserveDecodeLatency records how long one frame's envelope took to
// JSON-decode for exchange.
func ObserveDecodeLatency(exchange string, ms float64) {
	decodeLatency.WithLabelValues(exchange).Observe(ms)
}

// ObserveBookApplyLatency records how long one delta took to apply to a
// book instance.
func ObserveBookApplyLatency(exchange, symbol string, us float64) {
	bookApplyLatency.WithLabelValues(exchange, symbol).Observe(us)
}

// IncDeltasEmitted increments the emitted-delta counter for exchange.
func IncDeltasEmitted(exchange string, n int) {
	deltasEmitted.WithLabelValues(exchange).Add(float64(n))
}

// IncDeltasDropped increments the dropped-delta counter for exchange/reason.
func IncDeltasDropped(exchange, reason string) {
	deltasDropped.WithLabelValues(exchange, reason).Inc()
}

// SetWebSocketConnected records exchange's WebSocket connection state.
func SetWebSocketConnected(exchange string, connected bool) {
	wsConnected.WithLabelValues(exchange).Set(boolToFloat(connected))
}

// SetTickStoreConnected records the tick-store connection state.
func SetTickStoreConnected(connected bool) {
	tickstoreConnected.Set(boolToFloat(connected))
}

// ObserveArchiveCycle records the duration of a completed archive cycle.
func ObserveArchiveCycle(seconds float64) {
	archiveCycleDuration.Observe(seconds)
}

// IncArchiveCycleErrors increments the archive-cycle failure counter.
func IncArchiveCycleErrors() {
	archiveCycleErrors.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler returns the promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
