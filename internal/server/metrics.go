package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "chatrelay"

// Metrics holds the relay's Prometheus collectors on a private registry.
// A nil *Metrics is valid; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Counter
	handshakeFailures prometheus.Counter
	sessions          prometheus.Gauge
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	departures        *prometheus.CounterVec
	duplicateIDs      prometheus.Counter
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Connections accepted on any transport.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_failures_total",
			Help:      "Connections closed before a valid handshake.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Entries currently held in the session directory.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames after the handshake, by kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded instead of delivered or routed, by reason.",
		}, []string{"reason"}),
		departures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "departures_total",
			Help:      "Sessions removed from the directory, by reason.",
		}, []string{"reason"}),
		duplicateIDs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicate_ids_total",
			Help:      "Handshakes naming an id that already had a live session.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.handshakeFailures,
		m.sessions,
		m.framesReceived,
		m.framesDropped,
		m.departures,
		m.duplicateIDs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) handshakeFailed() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

func (m *Metrics) sessionAdded() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) sessionRemoved() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) frameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) frameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) departed(reason LeaveReason) {
	if m == nil {
		return
	}
	m.departures.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) duplicateID() {
	if m == nil {
		return
	}
	m.duplicateIDs.Inc()
}
