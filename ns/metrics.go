package ns

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateSink receives liveness observations as they happen on the
// reactor loop. Implementations must be fast and non-blocking.
type StateSink interface {
	OnSessionOpened()
	OnSessionClosed(reason DisconnectReason)
	OnUserStateChange(login, state, event string)
}

// NopSink discards every observation.
type NopSink struct{}

func (NopSink) OnSessionOpened()                 {}
func (NopSink) OnSessionClosed(DisconnectReason) {}
func (NopSink) OnUserStateChange(_, _, _ string) {}

// Metrics is the Prometheus-backed StateSink.
type Metrics struct {
	registry *prometheus.Registry

	connected    prometheus.Gauge
	disconnects  *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
}

// NewMetrics builds the sink with all collectors registered on a
// private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsould_connected_sessions",
			Help: "Number of currently connected sessions.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsould_disconnects_total",
			Help: "Closed sessions by disconnect reason.",
		}, []string{"reason"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsould_state_changes_total",
			Help: "User liveness transitions by event opcode.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(m.connected, m.disconnects, m.stateChanges)
	return m
}

func (m *Metrics) OnSessionOpened() {
	m.connected.Inc()
}

func (m *Metrics) OnSessionClosed(reason DisconnectReason) {
	m.connected.Dec()
	m.disconnects.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) OnUserStateChange(_, _, event string) {
	m.stateChanges.WithLabelValues(event).Inc()
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
