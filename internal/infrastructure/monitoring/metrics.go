package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tree metrics
	TreeFetches   *prometheus.CounterVec // outcome: ok|error
	TreeCacheHits prometheus.Counter
	TreeCoalesced prometheus.Counter

	// Secrets metrics
	SecretSaves     *prometheus.CounterVec // trigger: debounce|remove|flush
	SecretSaveFails prometheus.Counter
	DebounceRearms  prometheus.Counter

	// Transfer metrics
	TransferBytes  prometheus.Counter
	HandlesActive  prometheus.Gauge
	HandlesExpired prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec // direction: in|out, type

	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		TreeFetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_tree_fetches_total",
				Help: "Subtree list fetches by outcome",
			},
			[]string{"outcome"},
		),
		TreeCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_tree_cache_hits_total",
				Help: "Expands served from the hydrated cache",
			},
		),
		TreeCoalesced: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_tree_coalesced_total",
				Help: "Expands that joined an in-flight fetch",
			},
		),

		SecretSaves: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_secret_saves_total",
				Help: "Environment-variable saves by trigger",
			},
			[]string{"trigger"},
		),
		SecretSaveFails: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_secret_save_failures_total",
				Help: "Failed environment-variable saves",
			},
		),
		DebounceRearms: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_secret_debounce_rearms_total",
				Help: "Debounce timer restarts caused by rapid edits",
			},
		),

		TransferBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_transfer_bytes_total",
				Help: "Bytes fetched for open/download actions",
			},
		),
		HandlesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_transfer_handles_active",
				Help: "Transient transfer handles currently held",
			},
		),
		HandlesExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_transfer_handles_expired_total",
				Help: "Handles released by the expiry sweep instead of the widget",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_ws_connections",
				Help: "Active widget WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_ws_messages_total",
				Help: "Widget protocol messages by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
}

// RecordHTTPRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Uptime returns time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
