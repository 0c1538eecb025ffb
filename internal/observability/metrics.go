package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	ToolLatency     *prometheus.HistogramVec
	WSMessages      *prometheus.CounterVec
	UpstreamErrors  *prometheus.CounterVec
	MapReadyLatency prometheus.Histogram

	toolWindow *toolLatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active realtime voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_latency_ms",
			Help:      "Tool handler latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"tool"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "UI bridge websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream API errors by service and code.",
		}, []string{"service", "code"}),
		MapReadyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "map_ready_latency_ms",
			Help:      "Latency from map panel request to readiness in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		toolWindow: newToolLatencyWindow(256),
	}
}

// ObserveToolCall records one tool invocation in both the Prometheus
// histogram and the rolling diagnostics window.
func (m *Metrics) ObserveToolCall(tool, outcome string, d time.Duration) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	ms := float64(d.Milliseconds())
	m.ToolLatency.WithLabelValues(tool).Observe(ms)
	m.toolWindow.Observe(tool, ms)
}

// ToolLatencySnapshot returns rolling-window latency stats for /api/perf.
func (m *Metrics) ToolLatencySnapshot() ToolLatencySnapshot {
	return m.toolWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
